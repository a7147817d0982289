package storage

import (
	"time"
)

type StoreGroup byte

const (
	StoreGroupNode StoreGroup = iota
	StoreGroupParameters
)

var (
	StoreGroupToString = map[StoreGroup]string{
		StoreGroupNode:       "node",
		StoreGroupParameters: "parameters",
	}
	StoreGroupFromString = map[string]StoreGroup{
		"node":       StoreGroupNode,
		"parameters": StoreGroupParameters,
	}
)

// resources
const (
	// node
	Meta = "meta"
	// parameters
	Modules = "modules"
)

type Getter interface {
	Get(key string) (interface{}, error)
}

type Lister interface {
	List(key string) (interface{}, error)
}

type Creater interface {
	Create(key string, obj interface{}) (interface{}, error)
}

type Updater interface {
	Update(key, version string, obj interface{}) (interface{}, error)
}

type Deleter interface {
	Delete(key, version string) (interface{}, error)
}

type Storage interface {
	Getter
	Lister
	Creater
	Updater
	Deleter
}

type FileInfo struct {
	Path    string
	ModTime time.Time
}
