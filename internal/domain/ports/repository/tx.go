package repository

// Tx is an opaque transaction handle. Repositories accept one and MUST
// gracefully accept nil (the non-transactional path); the concrete type is
// infra-defined (pgx.Tx for Postgres).
type Tx interface{}

var NoTX interface{}
