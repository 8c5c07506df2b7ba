package telemetry

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// CommitLog is one durable audit row for a finished transaction. It is
// persisted through GORM independently of the ontology's own relational
// tables, so the audit trail survives a later migration or truncation
// of those tables, the same separation the teacher framework keeps
// between its RabbitLog audit table and the data those messages
// describe.
type CommitLog struct {
	gorm.Model
	TxnID        string
	Status       string
	ResourceURIs string `gorm:"type:text"`
	Error        string
}

// AuditLog appends one CommitLog row per finished transaction.
type AuditLog struct {
	db *gorm.DB
}

// OpenAuditLog connects to Postgres via GORM and migrates the CommitLog
// table, creating it on first use.
func OpenAuditLog(pgURL string) (*AuditLog, error) {
	db, err := gorm.Open(postgres.Open(pgURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("telemetry: open audit log: %w", err)
	}
	if err := db.AutoMigrate(&CommitLog{}); err != nil {
		return nil, fmt.Errorf("telemetry: migrate audit log: %w", err)
	}
	return &AuditLog{db: db}, nil
}

// RecordCommit appends an audit row for a transaction that committed
// successfully, naming every resource URI it touched.
func (a *AuditLog) RecordCommit(txnID string, resourceURIs []string) error {
	return a.db.Create(&CommitLog{
		TxnID:        txnID,
		Status:       "committed",
		ResourceURIs: strings.Join(resourceURIs, "\n"),
	}).Error
}

// RecordFailure appends an audit row for a transaction that rolled back.
func (a *AuditLog) RecordFailure(txnID string, cause error) error {
	return a.db.Create(&CommitLog{
		TxnID:  txnID,
		Status: "failed",
		Error:  cause.Error(),
	}).Error
}

// Recent returns the n most recently created audit rows, newest first.
func (a *AuditLog) Recent(n int) ([]CommitLog, error) {
	var logs []CommitLog
	err := a.db.Order("created_at desc").Limit(n).Find(&logs).Error
	return logs, err
}

// Close releases the underlying database connection pool.
func (a *AuditLog) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
