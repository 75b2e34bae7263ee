// Package handler implements the HTTP API of the trust engine.
//
// # Routes
//
//	GET    /api/peers/connected          connected-peer list
//	PUT    /api/peers/connected          replace the connected-peer list
//	GET    /api/peers?org=a,b            connected peers of the given organisations
//	GET    /api/peers/recommenders?min=  connected peers trusted as recommenders
//	GET    /api/trust/{id}               trust record of a peer
//	PUT    /api/trust/{id}               overwrite the trust record of a peer
//	DELETE /api/trust/{id}               evict the trust record of a peer
//	POST   /api/trust/matrix             overwrite several trust records (not atomic)
//	POST   /api/trust/query              trust records of several peers
//	GET    /api/opinions/{target}        cached opinion only (target may contain /)
//	POST   /api/opinions/{target}        cached opinion, else aggregate the posted reports
//	GET    /api/settings                 thresholds in effect
//	GET    /events                       server-sent events
//
// # Errors
//
// Error responses carry {error, details}. Invalid arguments map to 400, a
// missing record to 404, insufficient aggregation weight to 422, data
// corruption to 500 and an unreachable store to 503.
package handler
