package node

import (
	"bytes"
	"encoding/json"
	"fmt"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/storage"
	"harnsnode/pkg/utils/uuidutil"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

// LoadMeta returns the identity of node name stored below root, creating it
// on first start. The id survives restarts, a changed description is saved.
func LoadMeta(root, name, description string) (*runtime.NodeMeta, error) {
	if len(name) == 0 || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid node name %q", name)
	}
	client, err := storage.NewFsClient(root, storage.StoreGroupNode)
	if err != nil {
		return nil, err
	}
	key := filepath.Join(storage.Meta, name+".json")

	meta := &runtime.NodeMeta{}
	data, err := client.Get(key)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		meta = &runtime.NodeMeta{
			ObjectMeta:  runtime.ObjectMeta{Name: name, ID: uuidutil.UUID()},
			Description: description,
		}
		klog.InfoS("Node information not exist, created", "node", name, "id", meta.ID)
		if _, err := client.Create(key, meta); err != nil {
			return nil, err
		}
		return meta, nil
	}

	if err = json.NewDecoder(bytes.NewReader(data.([]byte))).Decode(meta); err != nil {
		klog.V(2).InfoS("Failed to unmarshal node information", "node", name, "err", err)
		return nil, err
	}
	if meta.Description != description {
		meta.Description = description
		if _, err := client.Update(key, meta.Version, meta); err != nil {
			klog.ErrorS(err, "Failed to update node information", "node", name)
		}
	}
	return meta, nil
}
