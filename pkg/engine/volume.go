package engine

import (
	"context"
	"fmt"

	"triplestore.dev/updateengine/pkg/store"
)

const volumeClassURI = "http://tracker.api.gnome.org/ontology/v3/tracker#Volume"
const volumeMountPointURI = "http://tracker.api.gnome.org/ontology/v3/tracker#mountPoint"
const dataSourceURI = "http://tracker.api.gnome.org/ontology/v3/nie#dataSource"

// EnableVolume ensures a tracker:Volume resource exists for udi, records
// its mount point, and marks every resource sourced from that volume
// available. The availability flip is issued as one bulk UPDATE directly
// against the store rather than through InsertStatement/DeleteStatement:
// it is a maintenance operation on an internal flag, not a statement the
// ontology models.
func (e *Engine) EnableVolume(ctx context.Context, udi, mountPath string) error {
	return e.withAutoTxn(ctx, func(txn *Transaction) error {
		volumeID, err := txn.resolver.Ensure(ctx, txn.tx, udi)
		if err != nil {
			return err
		}
		if err := txn.InsertStatement(ctx, udi, RDFType, NewResource(volumeClassURI)); err != nil {
			return err
		}
		if err := txn.InsertStatement(ctx, udi, volumeMountPointURI, NewLiteral(mountPath, "")); err != nil {
			return err
		}
		return setVolumeAvailability(ctx, txn.tx, volumeID, true)
	})
}

// DisableVolume mirrors EnableVolume, clearing availability instead.
func (e *Engine) DisableVolume(ctx context.Context, udi string) error {
	return e.withAutoTxn(ctx, func(txn *Transaction) error {
		volumeID, ok := txn.resolver.Resolve(udi)
		if !ok {
			return &ConstraintError{Reason: fmt.Sprintf("volume %q is not known", udi)}
		}
		return setVolumeAvailability(ctx, txn.tx, volumeID, false)
	})
}

// ResetVolume deletes the embedded description of every resource recorded
// under uri's mount path without removing the rdfs:Resource rows
// themselves, matching the original miner's rescans-from-scratch
// behavior.
func (e *Engine) ResetVolume(ctx context.Context, uri string) error {
	return e.withAutoTxn(ctx, func(txn *Transaction) error {
		rows, err := txn.tx.Query(ctx, `
			SELECT r.id FROM rdfs_Resource r
			JOIN nie_DataObject d ON d.ID = r.id
			WHERE d.nie_dataSource = (SELECT id FROM rdfs_Resource WHERE uri = $1)
		`, uri)
		if err != nil {
			return &StorageError{Op: "reset volume query", Err: err}
		}
		defer rows.Close()

		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return &StorageError{Op: "reset volume scan", Err: err}
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return &StorageError{Op: "reset volume rows", Err: err}
		}

		for _, id := range ids {
			if err := txn.deleteResourceDescriptionByID(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// DisableAllVolumes clears availability on every resource, used at process
// startup before a filesystem crawl re-establishes it.
func (e *Engine) DisableAllVolumes(ctx context.Context) error {
	return e.withAutoTxn(ctx, func(txn *Transaction) error {
		return txn.tx.Exec(ctx, `UPDATE rdfs_Resource SET Available = 0`)
	})
}

func setVolumeAvailability(ctx context.Context, tx store.Tx, volumeID int64, available bool) error {
	flag := 0
	if available {
		flag = 1
	}
	err := tx.Exec(ctx, `
		UPDATE rdfs_Resource SET Available = $1
		WHERE id IN (SELECT id FROM nie_DataObject WHERE nie_dataSource = $2)
	`, flag, volumeID)
	if err != nil {
		return &StorageError{Op: "set volume availability", Err: err}
	}
	return nil
}
