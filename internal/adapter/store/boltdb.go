package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.etcd.io/bbolt"

	"topicidx/internal/domain"
)

const (
	modelFile  = "model.db"
	docmapFile = "docmap.db"
	lockFile   = ".write.lock"
)

var (
	bucketMeta       = []byte("meta")
	bucketModel      = []byte("model")
	bucketIdentities = []byte("identities")
	keyInfo          = []byte("info")
	keyState         = []byte("state")
)

// Artifact is one persisted model generation: the model blob and the index
// mapping it was trained against.
type Artifact struct {
	Info       domain.ArtifactInfo
	ConfigHash string
	Model      []byte
	Identities []string
}

// artifactMeta is stored in both files so a mismatched pair is detectable.
type artifactMeta struct {
	domain.ArtifactInfo
	ConfigHash string `json:"config_hash"`
}

// ArtifactStore persists model artifacts as two bbolt files under
// <dir>/<family>/.
type ArtifactStore struct {
	dir    string
	logger *slog.Logger
}

// NewArtifactStore creates a store rooted at <modelsDir>/<family>.
func NewArtifactStore(modelsDir, family string, logger *slog.Logger) *ArtifactStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactStore{
		dir:    filepath.Join(modelsDir, family),
		logger: logger,
	}
}

// Dir returns the artifact directory.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Exists reports whether both artifact files are present.
func (s *ArtifactStore) Exists() bool {
	for _, name := range []string{modelFile, docmapFile} {
		if _, err := os.Stat(filepath.Join(s.dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Save writes both files. Each is written to a temporary path and renamed
// into place. A second concurrent writer gets domain.ErrArtifactLocked.
func (s *ArtifactStore) Save(a Artifact) error {
	if a.Info.Documents != len(a.Identities) {
		return fmt.Errorf("artifact has %d identities, info says %d", len(a.Identities), a.Info.Documents)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	lock := flock.New(filepath.Join(s.dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire artifact lock: %w", err)
	}
	if !locked {
		return &domain.ArtifactError{Path: s.dir, Reason: "concurrent writer", Err: domain.ErrArtifactLocked}
	}
	defer lock.Unlock()

	a.Info.Version = CurrentSchemaVersion
	meta, err := json.Marshal(artifactMeta{ArtifactInfo: a.Info, ConfigHash: a.ConfigHash})
	if err != nil {
		return err
	}

	err = s.writeFile(modelFile, func(tx *bbolt.Tx) error {
		if err := putMeta(tx, meta); err != nil {
			return err
		}
		b, err := tx.CreateBucketIfNotExists(bucketModel)
		if err != nil {
			return err
		}
		return b.Put(keyState, a.Model)
	})
	if err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	err = s.writeFile(docmapFile, func(tx *bbolt.Tx) error {
		if err := putMeta(tx, meta); err != nil {
			return err
		}
		b, err := tx.CreateBucketIfNotExists(bucketIdentities)
		if err != nil {
			return err
		}
		for i, id := range a.Identities {
			if err := b.Put(itob(i), []byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write index mapping file: %w", err)
	}

	s.logger.Info("artifact_saved",
		slog.String("dir", s.dir),
		slog.String("generation", a.Info.Generation),
		slog.Int("documents", a.Info.Documents))
	return nil
}

func (s *ArtifactStore) writeFile(name string, fn func(tx *bbolt.Tx) error) error {
	final := filepath.Join(s.dir, name)
	tmp := final + ".tmp"
	_ = os.Remove(tmp)

	db, err := bbolt.Open(tmp, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return err
	}
	if err := db.Update(fn); err != nil {
		db.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := db.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, final)
}

// Load reads both files and checks that they belong to the same generation.
// Every failure is returned as *domain.ArtifactError.
func (s *ArtifactStore) Load() (*Artifact, error) {
	var a Artifact

	modelMeta, err := s.readFile(modelFile, func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketModel)
		if b == nil {
			return errors.New("model bucket missing")
		}
		data := b.Get(keyState)
		if data == nil {
			return errors.New("model state missing")
		}
		a.Model = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	mapMeta, err := s.readFile(docmapFile, func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIdentities)
		if b == nil {
			return errors.New("identities bucket missing")
		}
		next := 0
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 8 || btoi(k) != next {
				return fmt.Errorf("index mapping has a gap at %d", next)
			}
			a.Identities = append(a.Identities, string(v))
			next++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if modelMeta.Generation != mapMeta.Generation {
		return nil, s.corrupt(docmapFile, fmt.Sprintf("generation %s does not match model generation %s",
			mapMeta.Generation, modelMeta.Generation))
	}
	if modelMeta.Documents != mapMeta.Documents || len(a.Identities) != modelMeta.Documents {
		return nil, s.corrupt(docmapFile, fmt.Sprintf("model has %d documents, index mapping has %d",
			modelMeta.Documents, len(a.Identities)))
	}

	a.Info = modelMeta.ArtifactInfo
	a.ConfigHash = modelMeta.ConfigHash

	s.logger.Info("artifact_loaded",
		slog.String("dir", s.dir),
		slog.String("generation", a.Info.Generation),
		slog.Int("documents", a.Info.Documents))
	return &a, nil
}

func (s *ArtifactStore) readFile(name string, fn func(tx *bbolt.Tx) error) (*artifactMeta, error) {
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, &domain.ArtifactError{Path: path, Reason: "file not found", Err: domain.ErrArtifactMissing}
		}
		return nil, s.corrupt(name, err.Error())
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, s.corrupt(name, err.Error())
	}
	defer db.Close()

	var meta artifactMeta
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return errors.New("meta bucket missing")
		}
		data := b.Get(keyInfo)
		if data == nil {
			return errors.New("artifact info missing")
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			return fmt.Errorf("artifact info unreadable: %v", err)
		}
		if meta.Version != CurrentSchemaVersion {
			return fmt.Errorf("schema version %d, want %d", meta.Version, CurrentSchemaVersion)
		}
		return fn(tx)
	})
	if err != nil {
		return nil, s.corrupt(name, err.Error())
	}
	return &meta, nil
}

func (s *ArtifactStore) corrupt(name, reason string) error {
	return &domain.ArtifactError{
		Path:   filepath.Join(s.dir, name),
		Reason: reason,
		Err:    domain.ErrArtifactCorrupt,
	}
}

func putMeta(tx *bbolt.Tx, meta []byte) error {
	b, err := tx.CreateBucketIfNotExists(bucketMeta)
	if err != nil {
		return err
	}
	return b.Put(keyInfo, meta)
}

func itob(i int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(i))
	return b
}

func btoi(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}
