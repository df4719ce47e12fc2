// Package validate implements the request validator applied to every
// user-facing storage operation. The same ordered ruleset backs two
// invocation modes: Validate returns a typed *gateway.Error for the
// orchestrator, Check returns (ok, message) for adapter-level re-checks.
package validate

import (
	"fmt"
	"strings"

	"github.com/famgate/famgate/pkg/gateway"
	"github.com/famgate/famgate/pkg/metadata"
)

// DefaultMaxFileSize bounds uploads when no limit is configured.
const DefaultMaxFileSize int64 = 100 << 20 // 100 MiB

// DefaultAllowedExtensions is the stock extension allow-list.
var DefaultAllowedExtensions = []string{
	"pdf", "doc", "docx", "txt",
	"jpg", "jpeg", "png", "gif",
	"mp4", "avi", "mp3", "wav",
	"zip", "rar",
}

// DefaultAllowedMIMETypes mirrors DefaultAllowedExtensions on the declared
// content-type. The hint is optional; an empty content-type passes.
var DefaultAllowedMIMETypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
	"image/jpeg", "image/png", "image/gif",
	"video/mp4", "video/x-msvideo",
	"audio/mpeg", "audio/wav", "audio/x-wav",
	"application/zip", "application/x-rar-compressed",
	"application/octet-stream",
}

const (
	minFamilyIDLen  = 3
	maxFamilyIDLen  = 50
	maxFolderPathLen = 255
)

// forbiddenPathTokens are rejected anywhere in a folder path. ".." covers
// traversal; the rest are characters that are not portable across backends.
var forbiddenPathTokens = []string{"..", `\`, ":", "*", "?", `"`, "<", ">", "|"}

// UploadRequest is the transient request shape the validator inspects.
type UploadRequest struct {
	FamilyID       string
	UploaderUserID string
	OriginalName   string
	FolderPath     string
	Visibility     metadata.Visibility
	ContentType    string
	FileSize       int64
	HasFile        bool
}

// Config tunes the validator. Zero values fall back to defaults.
type Config struct {
	MaxFileSize       int64
	AllowedExtensions []string
	AllowedMIMETypes  []string
}

// Validator applies the ruleset. Construct with New; the zero value is not
// usable.
type Validator struct {
	maxFileSize int64
	extensions  map[string]struct{}
	mimeTypes   map[string]struct{}
}

func New(cfg Config) *Validator {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultAllowedExtensions
	}
	if len(cfg.AllowedMIMETypes) == 0 {
		cfg.AllowedMIMETypes = DefaultAllowedMIMETypes
	}

	v := &Validator{
		maxFileSize: cfg.MaxFileSize,
		extensions:  make(map[string]struct{}, len(cfg.AllowedExtensions)),
		mimeTypes:   make(map[string]struct{}, len(cfg.AllowedMIMETypes)),
	}
	for _, ext := range cfg.AllowedExtensions {
		v.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	for _, mt := range cfg.AllowedMIMETypes {
		v.mimeTypes[strings.ToLower(mt)] = struct{}{}
	}
	return v
}

// MaxFileSize returns the configured upload size limit.
func (v *Validator) MaxFileSize() int64 { return v.maxFileSize }

// AllowedExtension reports whether ext (without dot) is accepted.
func (v *Validator) AllowedExtension(ext string) bool {
	_, ok := v.extensions[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}

// ValidateUpload runs the full ruleset and returns the first failure as a
// typed error. On success an omitted visibility has been defaulted to
// PRIVATE in req.
func (v *Validator) ValidateUpload(rc *gateway.RequestContext, req *UploadRequest) error {
	for _, rule := range v.uploadRules() {
		if err := rule(rc, req); err != nil {
			return err
		}
	}
	return nil
}

// Check runs the same ruleset and reports the outcome without raising.
func (v *Validator) Check(rc *gateway.RequestContext, req *UploadRequest) (bool, string) {
	if err := v.ValidateUpload(rc, req); err != nil {
		return false, gateway.AsError(err).Message
	}
	return true, ""
}

// ValidateAccess checks the identity and family-id rules that apply to
// read, delete and share requests, where no payload is involved.
func (v *Validator) ValidateAccess(rc *gateway.RequestContext, familyID string) error {
	if err := ruleAuthenticated(rc); err != nil {
		return err
	}
	return ruleFamilyID(familyID)
}

type uploadRule func(rc *gateway.RequestContext, req *UploadRequest) error

// uploadRules returns the ruleset in its contractual order. Ordering is
// observable: a request failing several rules reports the first one.
func (v *Validator) uploadRules() []uploadRule {
	return []uploadRule{
		func(rc *gateway.RequestContext, _ *UploadRequest) error {
			return ruleAuthenticated(rc)
		},
		func(rc *gateway.RequestContext, req *UploadRequest) error {
			if req.UploaderUserID != "" && req.UploaderUserID != rc.UserID {
				return gateway.E(gateway.KindAuth, "IDENTITY_MISMATCH",
					"uploader id does not match the authenticated user")
			}
			return nil
		},
		func(_ *gateway.RequestContext, req *UploadRequest) error {
			return ruleFamilyID(req.FamilyID)
		},
		func(_ *gateway.RequestContext, req *UploadRequest) error {
			if !req.HasFile || req.FileSize == 0 {
				return gateway.E(gateway.KindValidation, "EMPTY_FILE", "file is missing or empty")
			}
			return nil
		},
		func(_ *gateway.RequestContext, req *UploadRequest) error {
			if req.FileSize > v.maxFileSize {
				return gateway.E(gateway.KindValidation, "FILE_TOO_LARGE",
					fmt.Sprintf("file size %d exceeds limit %d", req.FileSize, v.maxFileSize))
			}
			return nil
		},
		func(_ *gateway.RequestContext, req *UploadRequest) error {
			if strings.TrimSpace(req.OriginalName) == "" {
				return gateway.E(gateway.KindValidation, "EMPTY_NAME", "file name is required")
			}
			return nil
		},
		func(_ *gateway.RequestContext, req *UploadRequest) error {
			ext := metadata.ExtensionOf(req.OriginalName)
			if _, ok := v.extensions[ext]; !ok {
				return gateway.E(gateway.KindValidation, "UNSUPPORTED_TYPE",
					fmt.Sprintf("file extension %q is not allowed", ext))
			}
			return nil
		},
		func(_ *gateway.RequestContext, req *UploadRequest) error {
			if req.ContentType == "" {
				return nil
			}
			mt := strings.ToLower(req.ContentType)
			if i := strings.IndexByte(mt, ';'); i >= 0 {
				mt = strings.TrimSpace(mt[:i])
			}
			if _, ok := v.mimeTypes[mt]; !ok {
				return gateway.E(gateway.KindValidation, "UNSUPPORTED_MIME",
					fmt.Sprintf("content type %q is not allowed", req.ContentType))
			}
			return nil
		},
		func(_ *gateway.RequestContext, req *UploadRequest) error {
			if req.Visibility == "" {
				req.Visibility = metadata.VisibilityPrivate
				return nil
			}
			if !metadata.KnownVisibility(req.Visibility) {
				return gateway.E(gateway.KindValidation, "INVALID_VISIBILITY",
					fmt.Sprintf("unknown visibility %q", req.Visibility))
			}
			return nil
		},
		func(_ *gateway.RequestContext, req *UploadRequest) error {
			if req.FolderPath == "" {
				return nil
			}
			return ruleFolderPath(req.FolderPath)
		},
	}
}

func ruleAuthenticated(rc *gateway.RequestContext) error {
	if !rc.Authenticated() {
		return gateway.E(gateway.KindAuth, "AUTH_REQUIRED", "authentication required")
	}
	return nil
}

func ruleFamilyID(familyID string) error {
	if familyID == "" {
		return nil
	}
	if len(familyID) < minFamilyIDLen || len(familyID) > maxFamilyIDLen {
		return gateway.E(gateway.KindValidation, "INVALID_FAMILY",
			fmt.Sprintf("family id length must be between %d and %d", minFamilyIDLen, maxFamilyIDLen))
	}
	return nil
}

func ruleFolderPath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return gateway.E(gateway.KindValidation, "INVALID_PATH", "folder path must start with /")
	}
	if len(path) > maxFolderPathLen {
		return gateway.E(gateway.KindValidation, "INVALID_PATH",
			fmt.Sprintf("folder path exceeds %d characters", maxFolderPathLen))
	}
	for _, tok := range forbiddenPathTokens {
		if strings.Contains(path, tok) {
			return gateway.E(gateway.KindValidation, "INVALID_PATH",
				fmt.Sprintf("folder path contains forbidden sequence %q", tok))
		}
	}
	return nil
}
