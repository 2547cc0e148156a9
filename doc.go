// Package filemanager is the storage layer of a web file manager. It offers
// folder and file management, search, upload, download, thumbnails and
// archive extraction over interchangeable storage backends.
//
// # Storage Backends
//
// Two drivers implement the [Storage] interface. They register themselves
// when imported:
//
//   - Local filesystem (github.com/gobeaver/filemanager/driver/local)
//   - S3 compatible object stores (github.com/gobeaver/filemanager/driver/s3)
//
// Storages are created from a [Config] and kept in a [Registry]:
//
//	import _ "github.com/gobeaver/filemanager/driver/local"
//
//	registry, err := filemanager.NewRegistryFromFile("filemanager.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer registry.Close()
//
// # Items
//
// An [Item] addresses a file or folder by its path relative to the storage
// root. Relative paths start with a slash and folders end with one. The
// state of an item is read when it is built; call [Item.ResetStats] after a
// mutation. [Item.Data] returns an [ItemData] snapshot for responses.
//
//	item, err := filemanager.NewItem(ctx, storage, "/photos/cat.jpg")
//	if err := item.CheckPath(); err != nil {
//	    // missing or outside the root
//	}
//
// # Restrictions and Permissions
//
// Every storage applies two restriction policies, one on file extensions
// and one on path patterns. Each is an allow list or a deny list:
//
//	security:
//	  extensions:
//	    policy: DISALLOW_LIST
//	    ignoreCase: true
//	    restrictions: [php, exe]
//	  patterns:
//	    policy: DISALLOW_LIST
//	    restrictions: ["*/.htaccess"]
//
// Restricted items are hidden from listings and rejected by operations.
// Read and write access additionally depends on the read-only flag, the
// operating system and an optional [Authorizer].
//
// # Operations
//
// The [Manager] runs the user facing operations of one storage. Each
// operation validates its items, calls the backend and dispatches an
// [Event]:
//
//	m, err := filemanager.NewManagerFor(registry, "local",
//	    filemanager.WithEventSink(filemanager.SlogSink{Logger: logger}),
//	)
//	items, err := m.ReadFolder(ctx, "/")
//	_, err = m.AddFolder(ctx, "/", "reports")
//	results, err := m.Upload(ctx, "/reports", files)
//
// # Error Handling
//
// Errors wrap one of the kinds [ErrNotFound], [ErrInvalidPath],
// [ErrForbidden], [ErrConflict], [ErrBackend] and [ErrConfiguration]. A
// [PathError] carries the label shown to the user:
//
//	_, err := m.GetInfo(ctx, "/missing.txt")
//	if filemanager.IsNotFound(err) {
//	    fmt.Println(filemanager.LabelOf(err)) // FILE_DOES_NOT_EXIST
//	}
//	status := filemanager.StatusCode(err)
//
// # Configuration
//
// Storages are configured in a yaml, json or toml file under the
// "storages" key, one section per storage. A single storage can also be
// configured from BEAVER_FILEMANAGER_ environment variables, see [EnvConfig].
package filemanager
