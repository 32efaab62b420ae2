// Package integration contains the Integration bounded context.
// This context describes the sibling integration processes that extend the
// home platform, and the operations that can be routed to them.
//
// Key concepts:
//   - IntegrationMapping: static row describing how a sibling script is recognised
//   - DetectedIntegrationInfo: what a discovery scan learned about a running sibling
//   - OperationKind: closed set of cross-platform operations with fixed contracts
//   - Detector: port answering detection and compatibility queries
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
