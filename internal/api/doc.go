// Package api serves the persisted lists over HTTP.
//
// Routes (all JSON, wrapped as {"status": <code>, "data": <payload>}):
//
//	GET  /healthz
//	GET  /api/v1/anime          ?status=CURRENT,PAUSED  ?skip_cache=true
//	GET  /api/v1/manga
//	GET  /api/v1/anime/:id
//	GET  /api/v1/manga/:id
//	POST /api/v1/jobs           {"token": "run:user:42"}  (default run:all)
//
// List responses are cached per kind for api.cache_ttl. A non-numeric or
// unknown id answers 404. Handlers report failures through c.Error and the
// error middleware maps the services marker to a status code; unexpected
// failures surface as 500 without internal detail.
package api
