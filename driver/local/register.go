package local

import "github.com/gobeaver/filemanager"

func init() {
	filemanager.RegisterDriver(filemanager.StorageLocal, func(name string, cfg *filemanager.Config, opts ...filemanager.StorageOption) (filemanager.Storage, error) {
		return New(name, cfg, opts...)
	})
}
