// Package gormapm instruments gorm.
//
// Instrument registers a pair of callbacks around each of gorm's statement
// processors. The after callback reports the statement gorm built, its
// duration and tx.Error to an observability.Observer under the component
// "gorm", with the database name taken from the MySQL or PostgreSQL dialector DSN.
package gormapm
