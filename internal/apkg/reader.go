package apkg

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/ankilms/deckbridge/internal/entities"
)

const (
	// CurrentDatabaseName is the schema-21 collection export. Modern
	// .apkg files carry the complete data here, so it wins when both
	// variants are present.
	CurrentDatabaseName = "collection.anki21"
	// LegacyDatabaseName is the older schema variant.
	LegacyDatabaseName = "collection.anki2"
	// MediaManifestName is the JSON file mapping numeric archive names
	// to real media filenames.
	MediaManifestName = "media"

	// minPackageSize is the smallest possible zip (bare end-of-central-
	// directory record). Anything shorter is a truncated transfer.
	minPackageSize = 22
)

var (
	// ErrInvalidPackage indicates the bytes are not a valid zip archive.
	ErrInvalidPackage = errors.New("not a valid .apkg package")

	// ErrMissingDatabase indicates the archive contains neither
	// collection.anki21 nor collection.anki2.
	ErrMissingDatabase = errors.New("no collection database found in package")

	// ErrCorruptArchive indicates the zip's internal checksums failed.
	ErrCorruptArchive = errors.New("package archive is corrupt")
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// Package is an extracted .apkg archive. SourceDBPath points at the
// embedded collection database inside ExtractDir; Manifest is empty
// (never nil) when the archive carries no usable media manifest.
type Package struct {
	SourceDBPath string
	Manifest     entities.MediaManifest
	ExtractDir   string

	tempDir string
}

// Cleanup removes the temporary workspace the package was extracted
// into. Safe to call more than once.
func (p *Package) Cleanup() {
	if p.tempDir == "" {
		return
	}
	if err := os.RemoveAll(p.tempDir); err != nil {
		log.Printf("Failed to clean up package workspace %s: %v", p.tempDir, err)
	}
	p.tempDir = ""
}

// Open extracts a .apkg archive from raw bytes into a temporary
// workspace and locates the collection database and media manifest.
// The caller owns the returned Package and must call Cleanup.
func Open(content []byte) (*Package, error) {
	if len(content) < minPackageSize {
		return nil, fmt.Errorf("%w: %d bytes is too small", ErrInvalidPackage, len(content))
	}
	if !bytes.HasPrefix(content, zipMagic) {
		return nil, fmt.Errorf("%w: missing zip magic bytes", ErrInvalidPackage)
	}

	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPackage, err)
	}

	tempDir, err := os.MkdirTemp("", "apkg-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	pkg := &Package{
		Manifest:   entities.MediaManifest{},
		ExtractDir: tempDir,
		tempDir:    tempDir,
	}

	if err := extractAll(reader, tempDir); err != nil {
		pkg.Cleanup()
		return nil, err
	}

	// Prefer the newer schema variant when both are present.
	for _, name := range []string{CurrentDatabaseName, LegacyDatabaseName} {
		candidate := filepath.Join(tempDir, name)
		if _, err := os.Stat(candidate); err == nil {
			pkg.SourceDBPath = candidate
			break
		}
	}
	if pkg.SourceDBPath == "" {
		pkg.Cleanup()
		return nil, ErrMissingDatabase
	}

	pkg.Manifest = readManifest(filepath.Join(tempDir, MediaManifestName))

	return pkg, nil
}

// extractAll writes every regular archive entry into destDir. The
// .apkg wire format keeps everything at the archive root, so entries
// with path separators are skipped rather than trusted.
func extractAll(reader *zip.Reader, destDir string) error {
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(file.Name)
		if name != file.Name {
			log.Printf("Skipping non-root archive entry %q", file.Name)
			continue
		}

		if err := extractFile(file, filepath.Join(destDir, name)); err != nil {
			if errors.Is(err, zip.ErrChecksum) {
				return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, name, err)
			}
			return fmt.Errorf("failed to extract %s: %w", name, err)
		}
	}
	return nil
}

func extractFile(file *zip.File, destPath string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// readManifest parses the media manifest. A missing or unparsable
// manifest is not fatal for an injection: the note/card merge can
// proceed without media, so this degrades to an empty mapping.
func readManifest(path string) entities.MediaManifest {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Could not read media manifest: %v", err)
		}
		return entities.MediaManifest{}
	}

	var manifest entities.MediaManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Printf("Could not parse media manifest, proceeding without media: %v", err)
		return entities.MediaManifest{}
	}
	return manifest
}
