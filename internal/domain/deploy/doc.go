// Package deploy contains the core domain types of a deployment cycle.
//
// It defines the Application aggregate (current known-good artifact, upgrade
// candidate and last launch result), the closed HealthStatus and LaunchStatus
// enums, blocklist entries and the Fault taxonomy surfaced by the pipeline.
// Values are cloned between pipeline stages so no stage mutates the state a
// previous stage returned.
package deploy
