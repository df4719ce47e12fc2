// Package pipeline runs file operations as an ordered chain of steps over a
// shared processing context. Each operation type has its own chain; a step
// failure rolls back the compensations of every step already completed, in
// reverse order.
package pipeline

import (
	"fmt"
	"io"

	"github.com/famgate/famgate/pkg/gateway"
	"github.com/famgate/famgate/pkg/metadata"
)

// OperationType names the user-facing operation a chain executes.
type OperationType string

const (
	OpUpload   OperationType = "UPLOAD"
	OpDownload OperationType = "DOWNLOAD"
	OpDelete   OperationType = "DELETE"
	OpModify   OperationType = "MODIFY"
	OpView     OperationType = "VIEW"
	OpShare    OperationType = "SHARE"
)

// Stage is the progress marker of one operation. Transitions only move
// forward, except the jump to StageRolledBack after a failure.
type Stage int

const (
	StageInit Stage = iota
	StageValidated
	StageFileStored
	StageMetadataWritten
	StageStatsUpdated
	StageCompleted
	StageRolledBack
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "INIT"
	case StageValidated:
		return "VALIDATED"
	case StageFileStored:
		return "FILE_STORED"
	case StageMetadataWritten:
		return "METADATA_WRITTEN"
	case StageStatsUpdated:
		return "STATS_UPDATED"
	case StageCompleted:
		return "COMPLETED"
	case StageRolledBack:
		return "ROLLED_BACK"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Context carries one operation through its chain.
type Context struct {
	Operation OperationType
	TraceID   string

	// Requester is the resolved identity driving the operation.
	Requester *gateway.RequestContext

	// Meta is the metadata row being built or mutated.
	Meta *metadata.FileMetadata

	// Payload is the upload stream, nil for non-upload operations.
	Payload io.Reader

	// Stream is the download result, set by the chain for the caller to
	// consume and close.
	Stream io.ReadCloser

	// StoragePath is the backend locator assigned by the storage step.
	StoragePath string

	// SizeDelta is the size change of a MODIFY, new minus old.
	SizeDelta int64

	stage Stage
	err   error
}

// Stage returns the current progress marker.
func (c *Context) Stage() Stage { return c.stage }

// Err returns the failure recorded by the chain, if any.
func (c *Context) Err() error { return c.err }

// advance moves the stage forward. Backward transitions indicate a chain
// wiring bug and are rejected.
func (c *Context) advance(s Stage) error {
	if s != StageRolledBack && s < c.stage {
		return fmt.Errorf("stage cannot move backward from %s to %s", c.stage, s)
	}
	c.stage = s
	return nil
}
