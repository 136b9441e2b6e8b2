// Package actuator talks to the health and control endpoints of the managed
// application and implements the health monitor used by the pipeline.
//
// Transport errors, timeouts and unparseable bodies never surface as errors:
// health degrades to deploy.HealthUnknown and version info stays unresolved.
package actuator
