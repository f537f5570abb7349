// Package registry holds the fixed method table: name, parameter schema,
// locality class, and handler for every callable method.
//
// The registry is built once at startup from a fixed table plus the resolved
// route modes and is read-only afterwards. There is no hot registration;
// changing the method surface requires a restart.
package registry
