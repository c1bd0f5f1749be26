// Package rest serves dynamic view queries over HTTP.
//
// A query is a flat JSON object. The target key (view_name by default) names
// the relation; every other key is a filter on one of its columns:
//
//	POST /api/view/query
//	{"view_name": "sales.v_orders", "region": "EU", "total__gte": 100}
//
// Filter keys take the form column or column__operator. See package view for
// the operator table and how values are coerced.
//
// Routes:
//
//	Route                     | Description
//	--------------------------|------------------------------------------------
//	POST {base}/view/query    | Run a query, returns data and column metadata
//	GET  {base}/view/schema   | Relations known to the catalog (catalog only)
//	GET  {base}/openapi.json  | OpenAPI document for the query endpoint (catalog only)
//	GET  /healthz             | Database reachability
//
// Responses share one envelope. Failures carry success=false and a message:
//
//	Status | Cause
//	-------|-----------------------------------------------------------
//	200    | Query executed
//	400    | Invalid request, unknown target or column, rejected statement
//	413    | Request body too large
//	500    | Connectivity failure, timeout or anything unexpected
//
// Example usage:
//
//	svc := view.NewService(pool, view.WithCatalog(cache), view.WithLogger(logger))
//	srv, err := rest.NewServer(rest.Options{
//		Service: svc,
//		Pinger:  pool,
//		Catalog: cache,
//		Logger:  logger,
//		BaseURL: "/api",
//	})
//	if err != nil {
//		logger.Fatal("init server", zap.Error(err))
//	}
//	r := httputil.NewRouter(httputil.WithLogger(logger))
//	srv.Register(r)
//	r.ListenAndServe(":7273")
package rest
