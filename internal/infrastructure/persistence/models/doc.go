// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain entities and persistence models
// 4. Repositories use persistence models for database operations
//
// Structure:
// - sync_event.go: Event log, processing history, and subscription models
// - entity_mapping.go: Cross-platform entity mapping model
// - rate_limit.go: Persisted rate limit state model
// - snapshot.go: Entity snapshot, restore point, and rollback operation models
// - change_log.go: Change tracking entry model
// - sync_log.go: Sync run history model
// - alert.go: Operator alert model
package models
