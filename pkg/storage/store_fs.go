package storage

import (
	"context"
	"encoding/json"
	"golang.org/x/mod/sumdb"
	"harnsnode/pkg/apis"
	"harnsnode/pkg/runtime"
	"harnsnode/pkg/utils/fileutil"
	"harnsnode/pkg/utils/randutil"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// FsClient stores one JSON document per key below <root>/<group>.
// Updates and deletes take a file lock and check the stored version.
type FsClient struct {
	storePath string
}

var (
	_ Storage = (*FsClient)(nil)
)

func NewFsClient(root string, sg StoreGroup) (*FsClient, error) {
	if len(root) == 0 {
		root = DefaultStorePath
	}

	var dirs []string
	switch sg {
	case StoreGroupNode:
		dirs = []string{
			Meta,
		}
	case StoreGroupParameters:
		dirs = []string{
			Modules,
		}
	default:
		return nil, errors.Errorf("unsupported store group %d", sg)
	}

	fc := &FsClient{storePath: filepath.Join(root, StoreGroupToString[sg])}
	for _, m := range dirs {
		p := filepath.Join(fc.storePath, m)

		_, err := os.Stat(p)
		if os.IsNotExist(err) {
			absPath, _ := filepath.Abs(p)
			klog.V(2).InfoS("Created", "path", absPath)
			if err = os.MkdirAll(p, 0711); err != nil {
				return nil, errors.Wrapf(err, "create store directory %s", p)
			}
		} else if err != nil {
			return nil, errors.Wrapf(err, "stat store directory %s", p)
		}
	}
	return fc, nil
}

func (fc *FsClient) Path() string {
	return fc.storePath
}

func (fc *FsClient) Create(key string, obj interface{}) (interface{}, error) {
	if accessor, err := runtime.Accessor(obj); err == nil {
		if len(accessor.GetVersion()) == 0 {
			accessor.SetVersion(strconv.FormatUint(randutil.Uint64n()%uint64(runtime.ETagMaxInitialValue), 10))
		}
		accessor.SetModTime(time.Now())
	}

	f, err := os.OpenFile(filepath.Join(fc.storePath, key), os.O_CREATE|os.O_RDWR|os.O_EXCL, 0640)
	if err != nil {
		klog.V(2).InfoS("Failed to create file", "err", err)
		return nil, err
	}
	defer f.Close()
	err = json.NewEncoder(f).Encode(obj)
	if err != nil {
		klog.V(2).InfoS("Failed to encode", "err", err)
		return nil, errors.Wrapf(err, "encode %s", key)
	}
	return obj, nil
}

func (fc *FsClient) Get(key string) (interface{}, error) {
	data, err := os.ReadFile(filepath.Join(fc.storePath, key))
	if err != nil {
		if !os.IsNotExist(err) {
			klog.V(2).InfoS("Failed to read", "err", err)
		}
		return nil, err
	}
	return data, nil
}

func (fc *FsClient) List(key string) (interface{}, error) {
	var files []*FileInfo
	err := filepath.Walk(filepath.Join(fc.storePath, key), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, &FileInfo{
				Path:    path,
				ModTime: info.ModTime(),
			})
		}
		return nil
	})
	if err != nil {
		klog.V(2).InfoS("Failed to list", "err", err)
		return nil, errors.Wrapf(err, "list %s", key)
	}
	return files, nil
}

func (fc *FsClient) Delete(key, version string) (interface{}, error) {
	// version is not required when cascading delete
	if len(version) == 0 {
		c, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		wait.UntilWithContext(c, func(ctx context.Context) {
			if err := os.Remove(filepath.Join(fc.storePath, key)); !isEphemeralError(err) {
				if err != nil {
					klog.V(5).InfoS("Failed to remove file", "err", err)
				}
				cancel()
			}
		}, 10*time.Millisecond)
		return nil, nil
	}

	f, err := fc.open(key, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lock, err := fileutil.NewLock(f)
	if err != nil {
		klog.V(2).InfoS("Failed to lock", "err", err)
		return nil, sumdb.ErrWriteConflict
	}
	defer lock.Release()

	var target struct {
		runtime.ObjectMeta
	}
	err = json.NewDecoder(f).Decode(&target)
	if err != nil {
		klog.V(2).InfoS("Failed to unmarshal", "err", err)
		return nil, apis.ErrInternal
	}
	if target.Version != version {
		return nil, apis.ErrMismatch
	}

	err = os.Remove(filepath.Join(fc.storePath, key))
	if err != nil {
		klog.V(2).InfoS("Failed to remove", "err", err)
		return nil, apis.ErrInternal
	}
	return nil, nil
}

// Update replaces the document at key if its stored version equals version.
// The object gets a new version.
func (fc *FsClient) Update(key, version string, obj interface{}) (interface{}, error) {
	f, err := fc.open(key, os.O_RDWR)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lock, err := fileutil.NewLock(f)
	if err != nil {
		klog.V(2).InfoS("Failed to lock", "err", err)
		return nil, sumdb.ErrWriteConflict
	}
	defer lock.Release()

	var old struct {
		runtime.ObjectMeta
	}
	err = json.NewDecoder(f).Decode(&old)
	if err != nil {
		klog.V(2).InfoS("Failed to unmarshal", "err", err)
		return nil, apis.ErrInternal
	}
	if version != old.Version {
		return nil, apis.ErrMismatch
	}
	ver, _ := strconv.ParseUint(version, 10, 64)
	accessor, err := runtime.Accessor(obj)
	if err != nil {
		klog.V(2).InfoS("Failed to get accessor", "err", err)
		return nil, apis.ErrInternal
	}
	accessor.SetVersion(strconv.FormatUint(ver+uint64(randutil.Intn(100))+1, 10))
	accessor.SetModTime(time.Now())

	if err = f.Truncate(0); err != nil {
		klog.V(2).InfoS("Failed to truncate", "err", err)
		return nil, apis.ErrInternal
	}
	if _, err = f.Seek(0, 0); err != nil {
		klog.V(2).InfoS("Failed to seek", "err", err)
		return nil, apis.ErrInternal
	}
	err = json.NewEncoder(f).Encode(obj)
	if err != nil {
		klog.V(2).InfoS("Failed to marshal", "err", err)
		return nil, apis.ErrInternal
	}

	return obj, nil
}

func (fc *FsClient) open(key string, flag int) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(fc.storePath, key), flag, 0640)
	if err == nil {
		return f, nil
	}
	klog.V(2).InfoS("Failed to open file", "err", err)
	switch {
	case os.IsNotExist(err):
		return nil, os.ErrNotExist
	case isEphemeralError(err):
		return nil, sumdb.ErrWriteConflict
	default:
		return nil, errors.Wrapf(err, "open %s", key)
	}
}
