package shared

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"

	"github.com/distrotools/rpmcompare/pkg/aws"
)

// ProvidesFileName derives the deterministic output file name for an
// instance. Image name and description are free text set by the image
// owner, so they are slugged before ending up in a file name; an empty
// field slugs to "unknown" to keep the name well-formed.
func ProvidesFileName(inst *aws.Instance) string {
	return fmt.Sprintf("%s_%s_%s.txt",
		inst.ImageID,
		slugOrUnknown(inst.ImageName),
		slugOrUnknown(inst.ImageDescription),
	)
}

// WriteProvidesFile writes the provides list for an instance into dir and
// returns the file path.
func WriteProvidesFile(dir string, inst *aws.Instance, output string) (string, error) {
	path := filepath.Join(dir, ProvidesFileName(inst))
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		return "", fmt.Errorf("writing provides list for %s: %w", inst.ImageID, err)
	}

	return path, nil
}

func slugOrUnknown(v string) string {
	s := slug.Make(v)
	if s == "" {
		return "unknown"
	}

	return s
}
