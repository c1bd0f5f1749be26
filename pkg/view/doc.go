/*
Package view translates flat JSON filter requests into parameterized SELECT
statements against a named relation, and returns the matching rows together
with the relation's column metadata.

A request body names the target and carries filters as key/value pairs:

	{"view_name": "sales.v_orders", "total__gte": 100, "status__neq": "void"}

A key is a field name, optionally followed by "__" and an operator token:

	eq    =     (default)
	neq   <>
	lt    <
	lte   <=
	gt    >
	gte   >=
	like  LIKE

The request above compiles to

	SELECT * FROM "sales"."v_orders" WHERE true AND "total" >= @total_gte AND "status" <> @status_neq

with both values bound as named arguments. Null and blank values are ignored.

Service runs the statement and the column metadata lookup concurrently; if
either fails the other is canceled and the request fails as a whole.
*/
package view
