// Package models contains GORM persistence models that map to database tables.
// Domain types stay free of ORM tags; repositories convert through the
// ToDomain / FromDomain helpers defined next to each model.
package models
