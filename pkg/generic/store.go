package generic

import (
	"encoding/json"
	"errors"
	"fmt"
	"harnsnode/pkg/apis"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/storage"
	"k8s.io/klog/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ParameterStore keeps the persistent parameters of a node's modules, one
// record per module.
type ParameterStore struct {
	Node     string
	Resource string
	client   storage.Storage

	// saveMu serializes Save, mu guards versions
	saveMu   sync.Mutex
	mu       sync.Mutex
	versions map[string]string
}

func NewParameterStore(root, node string) (*ParameterStore, error) {
	client, err := storage.NewFsClient(root, storage.StoreGroupParameters)
	if err != nil {
		return nil, err
	}
	return &ParameterStore{
		Node:     node,
		Resource: storage.Modules,
		client:   client,
		versions: make(map[string]string),
	}, nil
}

func (s *ParameterStore) key(module string) string {
	return filepath.Join(s.Resource, fmt.Sprintf("%s.%s.json", s.Node, module))
}

// Load returns the persisted values of module, os.ErrNotExist if there are none.
func (s *ParameterStore) Load(module string) (map[string]interface{}, error) {
	rec, err := s.get(module)
	if err != nil {
		return nil, err
	}
	return rec.Parameters, nil
}

func (s *ParameterStore) get(module string) (*runtime.ParameterRecord, error) {
	data, err := s.client.Get(s.key(module))
	if err != nil {
		return nil, err
	}
	rec := &runtime.ParameterRecord{}
	if err := json.Unmarshal(data.([]byte), rec); err != nil {
		klog.V(3).InfoS("Failed to unmarshal", "module", module, "resource", s.Resource, "err", err)
		return nil, err
	}
	s.mu.Lock()
	s.versions[module] = rec.Version
	s.mu.Unlock()
	return rec, nil
}

// Save replaces the persisted values of module.
func (s *ParameterStore) Save(module string, values map[string]interface{}) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	rec := &runtime.ParameterRecord{
		ObjectMeta: runtime.ObjectMeta{Name: s.Node + "." + module},
		Module:     module,
		Parameters: values,
	}

	s.mu.Lock()
	version, known := s.versions[module]
	s.mu.Unlock()
	if !known {
		if old, err := s.get(module); err == nil {
			version, known = old.Version, true
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	var err error
	if known {
		_, err = s.client.Update(s.key(module), version, rec)
		if errors.Is(err, apis.ErrMismatch) {
			// changed behind our back, take the newer version and overwrite
			var old *runtime.ParameterRecord
			if old, err = s.get(module); err == nil {
				_, err = s.client.Update(s.key(module), old.Version, rec)
			}
		}
	} else {
		rec.Version = ""
		_, err = s.client.Create(s.key(module), rec)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.versions[module] = rec.Version
	s.mu.Unlock()
	return nil
}

// Modules lists the modules of this node that have persisted values.
func (s *ParameterStore) Modules() ([]string, error) {
	objs, err := s.client.List(s.Resource)
	if err != nil {
		return nil, err
	}
	var modules []string
	prefix := s.Node + "."
	if files, ok := objs.([]*storage.FileInfo); ok {
		for _, file := range files {
			name := strings.TrimSuffix(filepath.Base(file.Path), ".json")
			if strings.HasPrefix(name, prefix) {
				modules = append(modules, strings.TrimPrefix(name, prefix))
			}
		}
	}
	return modules, nil
}

func (s *ParameterStore) Delete(module string) error {
	s.mu.Lock()
	delete(s.versions, module)
	s.mu.Unlock()
	_, err := s.client.Delete(s.key(module), "")
	return err
}
