package filemanager

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gobeaver/beaver-kit/config"
	"github.com/spf13/viper"
)

// Config holds the settings of one named storage.
type Config struct {
	Driver    string         `mapstructure:"driver" json:"driver" yaml:"driver" validate:"required,oneof=local s3"`
	MkdirMode uint32         `mapstructure:"mkdirMode" json:"mkdirMode" yaml:"mkdirMode" validate:"max=511"`
	Options   OptionsConfig  `mapstructure:"options" json:"options" yaml:"options"`
	Security  SecurityConfig `mapstructure:"security" json:"security" yaml:"security"`
	Upload    UploadConfig   `mapstructure:"upload" json:"upload" yaml:"upload"`
	Images    ImagesConfig   `mapstructure:"images" json:"images" yaml:"images"`
	S3        S3Config       `mapstructure:"s3" json:"s3" yaml:"s3"`
}

// OptionsConfig holds root and size settings.
type OptionsConfig struct {
	// FileRoot is the storage root of the local driver.
	FileRoot string `mapstructure:"fileRoot" json:"fileRoot" yaml:"fileRoot"`
	// ServerRoot makes FileRoot relative to DocumentRoot.
	ServerRoot bool `mapstructure:"serverRoot" json:"serverRoot" yaml:"serverRoot"`
	// DocumentRoot is the public base path; the dynamic root is FileRoot minus DocumentRoot.
	DocumentRoot      string `mapstructure:"documentRoot" json:"documentRoot" yaml:"documentRoot"`
	FileRootSizeLimit int64  `mapstructure:"fileRootSizeLimit" json:"fileRootSizeLimit" yaml:"fileRootSizeLimit" validate:"min=0"`
	CharsLatinOnly    bool   `mapstructure:"charsLatinOnly" json:"charsLatinOnly" yaml:"charsLatinOnly"`
	// WatchRootSize keeps the root size cached and invalidates it on file
	// system notifications (local driver only).
	WatchRootSize bool `mapstructure:"watchRootSize" json:"watchRootSize" yaml:"watchRootSize"`
}

// SecurityConfig holds policy settings.
type SecurityConfig struct {
	ReadOnly          bool             `mapstructure:"readOnly" json:"readOnly" yaml:"readOnly"`
	NormalizeFilename bool             `mapstructure:"normalizeFilename" json:"normalizeFilename" yaml:"normalizeFilename"`
	Extensions        RestrictionRules `mapstructure:"extensions" json:"extensions" yaml:"extensions"`
	Patterns          RestrictionRules `mapstructure:"patterns" json:"patterns" yaml:"patterns"`
}

// UploadConfig holds upload limits.
type UploadConfig struct {
	FileSizeLimit  int64 `mapstructure:"fileSizeLimit" json:"fileSizeLimit" yaml:"fileSizeLimit" validate:"min=0"`
	FileCountLimit int   `mapstructure:"fileCountLimit" json:"fileCountLimit" yaml:"fileCountLimit" validate:"min=0"`
	Overwrite      bool  `mapstructure:"overwrite" json:"overwrite" yaml:"overwrite"`
}

// ImagesConfig holds image settings.
type ImagesConfig struct {
	Main      ImageBounds     `mapstructure:"main" json:"main" yaml:"main"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail" json:"thumbnail" yaml:"thumbnail"`
}

// ImageBounds limits the dimensions of uploaded images. Zero disables a bound.
type ImageBounds struct {
	AutoOrient bool `mapstructure:"autoOrient" json:"autoOrient" yaml:"autoOrient"`
	MaxWidth   int  `mapstructure:"maxWidth" json:"maxWidth" yaml:"maxWidth" validate:"min=0"`
	MaxHeight  int  `mapstructure:"maxHeight" json:"maxHeight" yaml:"maxHeight" validate:"min=0"`
	MinWidth   int  `mapstructure:"minWidth" json:"minWidth" yaml:"minWidth" validate:"min=0"`
	MinHeight  int  `mapstructure:"minHeight" json:"minHeight" yaml:"minHeight" validate:"min=0"`
}

// ThumbnailConfig holds thumbnail settings.
type ThumbnailConfig struct {
	Enabled         bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Cache           bool   `mapstructure:"cache" json:"cache" yaml:"cache"`
	Dir             string `mapstructure:"dir" json:"dir" yaml:"dir" validate:"required,excludesall=\\"`
	Crop            bool   `mapstructure:"crop" json:"crop" yaml:"crop"`
	MaxWidth        int    `mapstructure:"maxWidth" json:"maxWidth" yaml:"maxWidth" validate:"min=1"`
	MaxHeight       int    `mapstructure:"maxHeight" json:"maxHeight" yaml:"maxHeight" validate:"min=1"`
	UseLocalStorage bool   `mapstructure:"useLocalStorage" json:"useLocalStorage" yaml:"useLocalStorage"`
}

// ACL policies of the S3 driver.
const (
	ACLPolicyDefault = "default"
	ACLPolicyInherit = "inherit"
)

// S3Config holds the S3 driver settings.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" json:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" json:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"accessKeyId" json:"accessKeyId" yaml:"accessKeyId"`
	SecretAccessKey string `mapstructure:"secretAccessKey" json:"-" yaml:"-"`
	ForcePathStyle  bool   `mapstructure:"forcePathStyle" json:"forcePathStyle" yaml:"forcePathStyle"`
	// Root is the key prefix every object lives under.
	Root       string `mapstructure:"root" json:"root" yaml:"root"`
	DefaultACL string `mapstructure:"defaultAcl" json:"defaultAcl" yaml:"defaultAcl" validate:"omitempty,oneof=private public-read public-read-write authenticated-read bucket-owner-read bucket-owner-full-control"`
	ACLPolicy  string `mapstructure:"aclPolicy" json:"aclPolicy" yaml:"aclPolicy" validate:"omitempty,oneof=default inherit"`
	Encryption string `mapstructure:"encryption" json:"encryption" yaml:"encryption" validate:"omitempty,oneof=AES256 aws:kms aws:kms:dsse"`
}

// DefaultConfig returns the settings applied when a key is not configured.
func DefaultConfig() *Config {
	return &Config{
		Driver:    "local",
		MkdirMode: 0o755,
		Options: OptionsConfig{
			FileRoot: "./userfiles",
		},
		Security: SecurityConfig{
			NormalizeFilename: true,
			Extensions: RestrictionRules{
				Policy:       DisallowList,
				IgnoreCase:   true,
				Restrictions: []string{"php", "phtml", "phar", "cgi", "exe", "sh"},
			},
			Patterns: RestrictionRules{
				Policy:       DisallowList,
				IgnoreCase:   true,
				Restrictions: []string{"*/.htaccess", "*/web.config", "*/.git/*"},
			},
		},
		Upload: UploadConfig{
			FileSizeLimit: 16_000_000,
		},
		Images: ImagesConfig{
			Main: ImageBounds{AutoOrient: true},
			Thumbnail: ThumbnailConfig{
				Enabled:   true,
				Cache:     true,
				Dir:       "_thumbs",
				Crop:      true,
				MaxWidth:  64,
				MaxHeight: 64,
			},
		},
		S3: S3Config{
			Region:    "us-east-1",
			Root:      "userfiles",
			ACLPolicy: ACLPolicyDefault,
		},
	}
}

var validate = validator.New()

// Validate checks the configuration and normalizes derived settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	switch c.Driver {
	case "local":
		if c.Options.FileRoot == "" {
			return fmt.Errorf("%w: options.fileRoot is required for the local driver", ErrConfiguration)
		}
	case "s3":
		if c.S3.Bucket == "" {
			return fmt.Errorf("%w: s3.bucket is required for the s3 driver", ErrConfiguration)
		}
	}

	c.Images.Thumbnail.Dir = strings.Trim(CleanPath(c.Images.Thumbnail.Dir), "/")
	if c.Images.Thumbnail.Dir == "" {
		return fmt.Errorf("%w: images.thumbnail.dir must name a folder", ErrConfiguration)
	}

	// Thumbnails never show up in listings when paths are deny-listed.
	if c.Security.Patterns.Policy == DisallowList {
		pattern := ThumbnailPattern(c.Images.Thumbnail.Dir)
		if !slices.Contains(c.Security.Patterns.Restrictions, pattern) {
			c.Security.Patterns.Restrictions = append(slices.Clone(c.Security.Patterns.Restrictions), pattern)
		}
	}

	return nil
}

// setDefaults registers the defaults of one storage section on v. Keys that
// have defaults are also resolvable from the environment.
func setDefaults(v *viper.Viper, prefix string) {
	d := DefaultConfig()
	set := func(key string, value any) { v.SetDefault(prefix+"."+key, value) }

	set("driver", d.Driver)
	set("mkdirMode", d.MkdirMode)
	set("options.fileRoot", d.Options.FileRoot)
	set("options.serverRoot", d.Options.ServerRoot)
	set("options.documentRoot", d.Options.DocumentRoot)
	set("options.fileRootSizeLimit", d.Options.FileRootSizeLimit)
	set("options.charsLatinOnly", d.Options.CharsLatinOnly)
	set("options.watchRootSize", d.Options.WatchRootSize)
	set("security.readOnly", d.Security.ReadOnly)
	set("security.normalizeFilename", d.Security.NormalizeFilename)
	set("security.extensions.policy", string(d.Security.Extensions.Policy))
	set("security.extensions.ignoreCase", d.Security.Extensions.IgnoreCase)
	set("security.extensions.restrictions", d.Security.Extensions.Restrictions)
	set("security.patterns.policy", string(d.Security.Patterns.Policy))
	set("security.patterns.ignoreCase", d.Security.Patterns.IgnoreCase)
	set("security.patterns.restrictions", d.Security.Patterns.Restrictions)
	set("upload.fileSizeLimit", d.Upload.FileSizeLimit)
	set("upload.fileCountLimit", d.Upload.FileCountLimit)
	set("upload.overwrite", d.Upload.Overwrite)
	set("images.main.autoOrient", d.Images.Main.AutoOrient)
	set("images.main.maxWidth", d.Images.Main.MaxWidth)
	set("images.main.maxHeight", d.Images.Main.MaxHeight)
	set("images.main.minWidth", d.Images.Main.MinWidth)
	set("images.main.minHeight", d.Images.Main.MinHeight)
	set("images.thumbnail.enabled", d.Images.Thumbnail.Enabled)
	set("images.thumbnail.cache", d.Images.Thumbnail.Cache)
	set("images.thumbnail.dir", d.Images.Thumbnail.Dir)
	set("images.thumbnail.crop", d.Images.Thumbnail.Crop)
	set("images.thumbnail.maxWidth", d.Images.Thumbnail.MaxWidth)
	set("images.thumbnail.maxHeight", d.Images.Thumbnail.MaxHeight)
	set("images.thumbnail.useLocalStorage", d.Images.Thumbnail.UseLocalStorage)
	set("s3.region", d.S3.Region)
	set("s3.root", d.S3.Root)
	set("s3.aclPolicy", d.S3.ACLPolicy)
	set("s3.bucket", "")
	set("s3.endpoint", "")
	set("s3.accessKeyId", "")
	set("s3.secretAccessKey", "")
	set("s3.forcePathStyle", false)
	set("s3.defaultAcl", "")
	set("s3.encryption", "")
}

// StorageNames lists the storages configured under the "storages" key.
func StorageNames(v *viper.Viper) []string {
	names := make([]string, 0)
	for name := range v.GetStringMap("storages") {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LoadConfig decodes and validates the section of storage name from v.
func LoadConfig(v *viper.Viper, name string) (*Config, error) {
	key := "storages." + name
	if !v.IsSet(key) {
		return nil, fmt.Errorf("%w: no configuration for storage %q", ErrConfiguration, name)
	}
	setDefaults(v, key)

	// Unmarshal resolves every leaf key, so defaults and environment apply.
	var file struct {
		Storages map[string]Config `mapstructure:"storages"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("%w: decode storage %q: %v", ErrConfiguration, name, err)
	}
	cfg, ok := file.Storages[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: no configuration for storage %q", ErrConfiguration, name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("storage %q: %w", name, err)
	}
	return &cfg, nil
}

// ReadConfigFile reads a yaml, json or toml file holding a "storages" map.
// Every key can be overridden from the environment, e.g.
// FILEMANAGER_STORAGES_LOCAL_SECURITY_READONLY=true.
func ReadConfigFile(file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("FILEMANAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: config file %s not found", ErrConfiguration, file)
		}
		return nil, fmt.Errorf("%w: read config file: %v", ErrConfiguration, err)
	}
	return v, nil
}

// EnvConfig bootstraps a single storage from the environment. Variables
// carry the BEAVER_ prefix unless the Builder sets another one.
type EnvConfig struct {
	// ConfigFile, when set, takes precedence over the other variables.
	ConfigFile string `env:"FILEMANAGER_CONFIG_FILE"`
	Storage    string `env:"FILEMANAGER_STORAGE,default:local"`
	Driver     string `env:"FILEMANAGER_DRIVER,default:local"`

	FileRoot          string `env:"FILEMANAGER_FILE_ROOT,default:./userfiles"`
	FileRootSizeLimit int64  `env:"FILEMANAGER_FILE_ROOT_SIZE_LIMIT,default:0"`
	ReadOnly          bool   `env:"FILEMANAGER_READ_ONLY,default:false"`
	FileSizeLimit     int64  `env:"FILEMANAGER_UPLOAD_FILE_SIZE_LIMIT,default:16000000"`
	Overwrite         bool   `env:"FILEMANAGER_UPLOAD_OVERWRITE,default:false"`
	Thumbnails        bool   `env:"FILEMANAGER_THUMBNAILS_ENABLED,default:true"`
	ThumbnailDir      string `env:"FILEMANAGER_THUMBNAILS_DIR,default:_thumbs"`

	S3Bucket          string `env:"FILEMANAGER_S3_BUCKET"`
	S3Region          string `env:"FILEMANAGER_S3_REGION,default:us-east-1"`
	S3Endpoint        string `env:"FILEMANAGER_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"FILEMANAGER_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"FILEMANAGER_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"FILEMANAGER_S3_FORCE_PATH_STYLE,default:false"`
	S3Root            string `env:"FILEMANAGER_S3_ROOT,default:userfiles"`
	S3ACLPolicy       string `env:"FILEMANAGER_S3_ACL_POLICY,default:default"`
	S3DefaultACL      string `env:"FILEMANAGER_S3_DEFAULT_ACL"`
}

// GetEnvConfig returns config loaded from environment
func GetEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StorageConfig expands the environment settings into a storage config.
func (e *EnvConfig) StorageConfig() *Config {
	cfg := DefaultConfig()
	cfg.Driver = e.Driver
	cfg.Options.FileRoot = e.FileRoot
	cfg.Options.FileRootSizeLimit = e.FileRootSizeLimit
	cfg.Security.ReadOnly = e.ReadOnly
	cfg.Upload.FileSizeLimit = e.FileSizeLimit
	cfg.Upload.Overwrite = e.Overwrite
	cfg.Images.Thumbnail.Enabled = e.Thumbnails
	if e.ThumbnailDir != "" {
		cfg.Images.Thumbnail.Dir = e.ThumbnailDir
	}
	cfg.S3 = S3Config{
		Bucket:          e.S3Bucket,
		Region:          e.S3Region,
		Endpoint:        e.S3Endpoint,
		AccessKeyID:     e.S3AccessKeyID,
		SecretAccessKey: e.S3SecretAccessKey,
		ForcePathStyle:  e.S3ForcePathStyle,
		Root:            e.S3Root,
		ACLPolicy:       e.S3ACLPolicy,
		DefaultACL:      e.S3DefaultACL,
	}
	return cfg
}
