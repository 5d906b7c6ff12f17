package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fiscalops/apbots/constants"
	"github.com/fiscalops/apbots/internal/llm"
)

// VendorOverlay carries per-vendor instruction text and guardrails.
// Instruction text is always appended to the base prompts, never
// substituted for them.
type VendorOverlay struct {
	Key                string   `yaml:"-"`
	Aliases            []string `yaml:"aliases"`
	Extraction         string   `yaml:"extraction"`
	POIdentifier       string   `yaml:"po_identifier"`
	Review             string   `yaml:"review"`
	MaxTotal           float64  `yaml:"max_total"`
	RequireVendorMatch bool     `yaml:"require_vendor_match"`
}

// Overlays indexes vendor overlays by canonical key and alias.
type Overlays struct {
	byKey map[string]*VendorOverlay
	keys  []string
}

type overlayFile struct {
	Vendors map[string]*VendorOverlay `yaml:"vendors"`
}

// LoadOverlays reads the vendor overlay file. A missing file yields an
// empty set.
func LoadOverlays(path string) (*Overlays, error) {
	o := &Overlays{byKey: map[string]*VendorOverlay{}}
	if strings.TrimSpace(path) == "" {
		return o, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return o, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read overlays: %w", err)
	}
	return ParseOverlays(raw)
}

// ParseOverlays decodes overlay YAML.
func ParseOverlays(raw []byte) (*Overlays, error) {
	var f overlayFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse overlays: %w", err)
	}
	o := &Overlays{byKey: map[string]*VendorOverlay{}}
	for name, ov := range f.Vendors {
		key := constants.CanonicalVendorKey(name)
		if key == "" {
			continue
		}
		if ov == nil {
			ov = &VendorOverlay{}
		}
		ov.Key = key
		o.byKey[key] = ov
		o.keys = append(o.keys, key)
	}
	// aliases never shadow a real key
	for _, ov := range o.byKey {
		for _, a := range ov.Aliases {
			ak := constants.CanonicalVendorKey(a)
			if _, taken := o.byKey[ak]; ak == "" || taken {
				continue
			}
			o.byKey[ak] = ov
		}
	}
	sort.Strings(o.keys)
	return o, nil
}

// Lookup finds the overlay for a vendor name, or nil.
func (o *Overlays) Lookup(name string) *VendorOverlay {
	if o == nil {
		return nil
	}
	return o.byKey[constants.CanonicalVendorKey(name)]
}

// Keys lists the canonical vendor keys in sorted order.
func (o *Overlays) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Len is the number of vendors with overlays.
func (o *Overlays) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

func (ov *VendorOverlay) extraction() string {
	if ov == nil {
		return ""
	}
	return ov.Extraction
}

func (ov *VendorOverlay) poIdentifier() string {
	if ov == nil {
		return ""
	}
	return ov.POIdentifier
}

func (ov *VendorOverlay) review() string {
	if ov == nil {
		return ""
	}
	return ov.Review
}

// reviewGuidance is the PO guidance followed by any review-only text.
func (ov *VendorOverlay) reviewGuidance() string {
	parts := make([]string, 0, 2)
	for _, s := range []string{ov.poIdentifier(), ov.review()} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// VendorStage asks the model which known vendor printed a document.
type VendorStage struct {
	Model    llm.Model
	Overlays *Overlays
	Logger   *slog.Logger
}

func NewVendorStage(model llm.Model, overlays *Overlays, logger *slog.Logger) *VendorStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &VendorStage{Model: model, Overlays: overlays, Logger: logger}
}

type vendorDetection struct {
	VendorName *string `json:"vendor_name"`
}

// DetectVendor returns the detected vendor name and its overlay. Any
// failure is logged and yields no overlay.
func (s *VendorStage) DetectVendor(ctx context.Context, doc Document) (string, *VendorOverlay) {
	if s.Overlays.Len() == 0 || s.Model == nil {
		return "", nil
	}
	out, err := llm.Extract[vendorDetection](ctx, s.Model, llm.ExtractRequest{
		Purpose:      "vendor_detection",
		Instructions: llm.VendorDetectionInstructions(s.Overlays.Keys()),
		User:         doc.userContent(),
		Image:        doc.Preview,
		Schema:       llm.VendorDetectionSchema(),
	}, s.Logger)
	if err != nil {
		s.Logger.Warn("processor.vendor.detect_failed", "file", doc.Path, "error", err)
		return "", nil
	}
	if out.VendorName == nil || strings.TrimSpace(*out.VendorName) == "" {
		return "", nil
	}
	name := strings.TrimSpace(*out.VendorName)
	ov := s.Overlays.Lookup(name)
	s.Logger.Info("processor.vendor.detected", "file", doc.Path, "vendor", name, "overlay", ov != nil)
	return name, ov
}
