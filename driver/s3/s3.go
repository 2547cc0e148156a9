package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/gobeaver/filemanager"
)

// deleteBatchSize is the maximum number of keys accepted by DeleteObjects.
const deleteBatchSize = 1000

// Client is the subset of the S3 API used by Storage. *s3.Client satisfies
// it.
type Client interface {
	s3.ListObjectsV2APIClient

	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	GetObjectAcl(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error)
}

// Storage keeps files as objects of an S3 bucket. Folders are zero byte
// objects whose key ends with a slash. Absolute paths have the form
// s3://bucket/key.
type Storage struct {
	*filemanager.StorageBase

	client     Client
	bucket     string
	defaultACL types.ObjectCannedACL
	aclPolicy  string
	encryption types.ServerSideEncryption
}

// New creates an S3 storage from cfg with a client built from the s3
// section.
func New(name string, cfg *filemanager.Config, opts ...filemanager.StorageOption) (*Storage, error) {
	client, err := newClient(context.Background(), cfg.S3)
	if err != nil {
		return nil, &filemanager.PathError{Op: "init", Path: cfg.S3.Bucket, Label: filemanager.LabelInvalidConfigOption, Err: fmt.Errorf("%w: failed to create S3 client: %v", filemanager.ErrConfiguration, err)}
	}
	return NewWithClient(name, cfg, client, opts...)
}

// NewWithClient creates an S3 storage that talks to client.
func NewWithClient(name string, cfg *filemanager.Config, client Client, opts ...filemanager.StorageOption) (*Storage, error) {
	s := &Storage{
		client:     client,
		bucket:     cfg.S3.Bucket,
		defaultACL: types.ObjectCannedACL(cfg.S3.DefaultACL),
		aclPolicy:  cfg.S3.ACLPolicy,
		encryption: types.ServerSideEncryption(cfg.S3.Encryption),
	}
	if s.aclPolicy == "" {
		s.aclPolicy = filemanager.ACLPolicyDefault
	}

	base, err := filemanager.NewStorageBase(name, cfg, s, opts...)
	if err != nil {
		return nil, err
	}
	s.StorageBase = base
	s.SetThumbnailStorage(s)

	if err := s.SetRoot(context.Background(), cfg.S3.Root, false); err != nil {
		return nil, err
	}

	s.Logger().Info("s3 storage ready", "bucket", s.bucket, "root", s.Root(), "aclPolicy", s.aclPolicy)
	return s, nil
}

// SetRoot moves the storage root to the folder path of the bucket.
func (s *Storage) SetRoot(ctx context.Context, path string, makeDir bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dynamicRoot := filemanager.CleanPath("/" + path + "/")
	s.SetResolver(filemanager.NewResolver(s.bucketURI()+dynamicRoot, dynamicRoot))

	rootKey := s.rootKey()
	if !makeDir || rootKey == "" {
		return nil
	}

	info, err := s.statDir(ctx, rootKey)
	if err != nil {
		return err
	}
	if !info.Exists {
		s.Logger().Info("creating root folder", "root", s.Root())
		if err := s.putMarker(ctx, rootKey, aclParams{canned: s.defaultACL}); err != nil {
			return filemanager.BackendError("setroot", s.Root(), err)
		}
	}
	return nil
}

func (s *Storage) bucketURI() string {
	return "s3://" + s.bucket
}

// keyOf maps an absolute s3:// path to an object key.
func (s *Storage) keyOf(abs string) string {
	key := strings.TrimPrefix(abs, s.bucketURI())
	return strings.TrimPrefix(filemanager.CleanPath(key), "/")
}

func (s *Storage) rootKey() string {
	return strings.TrimPrefix(s.DynamicRoot(), "/")
}

func dirKey(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}

// parentKey returns the folder key holding key.
func parentKey(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return ""
	}
	return trimmed[:i+1]
}

// relativeOf maps an object key to a path relative to the storage root.
func (s *Storage) relativeOf(key string) string {
	return filemanager.NormalizeRelative(strings.TrimPrefix(key, s.rootKey()))
}

// HasSystemReadPermission implements filemanager.SystemPermissions. Bucket
// access is governed by IAM, so every path is readable.
func (s *Storage) HasSystemReadPermission(string) bool { return true }

// HasSystemWritePermission implements filemanager.SystemPermissions
func (s *Storage) HasSystemWritePermission(string) bool { return true }

// Stat implements filemanager.Storage. A folder exists when its marker
// exists or when any object lives below it. The root always exists.
func (s *Storage) Stat(ctx context.Context, abs string) (filemanager.StatInfo, error) {
	select {
	case <-ctx.Done():
		return filemanager.StatInfo{}, ctx.Err()
	default:
	}

	key := s.keyOf(abs)
	if key == "" || dirKey(key) == s.rootKey() {
		return filemanager.StatInfo{Exists: true, IsDir: true}, nil
	}

	if strings.HasSuffix(key, "/") {
		info, err := s.statDir(ctx, key)
		if err != nil {
			return filemanager.StatInfo{}, filemanager.BackendError("stat", abs, err)
		}
		return info, nil
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return filemanager.StatInfo{
			Exists:  true,
			Size:    aws.ToInt64(head.ContentLength),
			ModTime: aws.ToTime(head.LastModified),
		}, nil
	}
	if !isNotFound(err) {
		return filemanager.StatInfo{}, mapS3Error("stat", abs, err)
	}

	info, err := s.statDir(ctx, key+"/")
	if err != nil {
		return filemanager.StatInfo{}, filemanager.BackendError("stat", abs, err)
	}
	return info, nil
}

func (s *Storage) statDir(ctx context.Context, key string) (filemanager.StatInfo, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return filemanager.StatInfo{Exists: true, IsDir: true, ModTime: aws.ToTime(head.LastModified)}, nil
	}
	if !isNotFound(err) {
		return filemanager.StatInfo{}, err
	}

	resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return filemanager.StatInfo{}, err
	}
	if len(resp.Contents) > 0 || len(resp.CommonPrefixes) > 0 {
		return filemanager.StatInfo{Exists: true, IsDir: true}, nil
	}
	return filemanager.StatInfo{}, nil
}

// ReadDir implements filemanager.Storage
func (s *Storage) ReadDir(ctx context.Context, dir *filemanager.Item) ([]filemanager.DirEntry, error) {
	prefix := dirKey(s.keyOf(dir.AbsolutePath()))

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var entries []filemanager.DirEntry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("readdir", dir.RelativePath(), err)
		}

		for _, p := range page.CommonPrefixes {
			key := aws.ToString(p.Prefix)
			if key == prefix {
				continue
			}
			entries = append(entries, filemanager.DirEntry{
				Path: s.relativeOf(key),
				Info: filemanager.StatInfo{Exists: true, IsDir: true},
			})
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue
			}
			entries = append(entries, filemanager.DirEntry{
				Path: s.relativeOf(key),
				Info: objectInfo(obj),
			})
		}
	}
	return entries, nil
}

func objectInfo(obj types.Object) filemanager.StatInfo {
	return filemanager.StatInfo{
		Exists:  true,
		IsDir:   strings.HasSuffix(aws.ToString(obj.Key), "/"),
		Size:    aws.ToInt64(obj.Size),
		ModTime: aws.ToTime(obj.LastModified),
	}
}

// Open implements filemanager.Storage
func (s *Storage) Open(ctx context.Context, item *filemanager.Item) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyOf(item.AbsolutePath())),
	})
	if err != nil {
		return nil, mapS3Error("open", item.RelativePath(), err)
	}
	return resp.Body, nil
}

// Write implements filemanager.Storage. New objects get the access settings
// of their folder.
func (s *Storage) Write(ctx context.Context, item *filemanager.Item, content io.Reader) (int64, error) {
	key := s.keyOf(item.AbsolutePath())

	body, length, err := sizedBody(content)
	if err != nil {
		return 0, filemanager.BackendError("write", item.RelativePath(), err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(length),
		ContentType:   aws.String(filemanager.GuessContentType(key, nil)),
	}
	if s.encryption != "" {
		input.ServerSideEncryption = s.encryption
	}
	s.aclFor(ctx, parentKey(key)).applyPut(input)

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return 0, mapS3Error("write", item.RelativePath(), err)
	}
	return length, nil
}

// sizedBody returns a reader whose length is known. PutObject needs the
// length up front, so unknown readers are buffered.
func sizedBody(content io.Reader) (io.Reader, int64, error) {
	switch r := content.(type) {
	case *bytes.Reader:
		return r, int64(r.Len()), nil
	case *bytes.Buffer:
		return r, int64(r.Len()), nil
	case *strings.Reader:
		return r, int64(r.Len()), nil
	case io.ReadSeeker:
		current, err := r.Seek(0, io.SeekCurrent)
		if err == nil {
			if end, err := r.Seek(0, io.SeekEnd); err == nil {
				if _, err := r.Seek(current, io.SeekStart); err != nil {
					return nil, 0, err
				}
				return r, end - current, nil
			}
		}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// CreateFolder implements filemanager.Storage by writing a folder marker.
// An existing marker is reported as a conflict.
// S3 has no parent folders to create, so FolderOptions have no effect. With
// the inherit ACL policy the marker copies the grants of prototype, or of
// the parent folder when prototype is nil.
func (s *Storage) CreateFolder(ctx context.Context, target, prototype *filemanager.Item, opts ...filemanager.FolderOption) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	key := dirKey(s.keyOf(target.AbsolutePath()))
	protoKey := parentKey(key)
	if prototype != nil {
		protoKey = s.keyOf(prototype.AbsolutePath())
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return filemanager.NewPathError("mkdir", target.RelativePath(), filemanager.LabelDirAlreadyExists, filemanager.ErrConflict)
	case !isNotFound(err):
		return mapS3Error("mkdir", target.RelativePath(), err)
	}

	if err := s.putMarker(ctx, key, s.aclFor(ctx, protoKey)); err != nil {
		return &filemanager.PathError{Op: "mkdir", Path: target.RelativePath(), Label: filemanager.LabelUnableToCreateDir, Args: []string{target.RelativePath()}, Err: fmt.Errorf("%w: %w", filemanager.ErrBackend, err)}
	}
	return nil
}

func (s *Storage) putMarker(ctx context.Context, key string, acl aclParams) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		ContentType:   aws.String("application/x-directory"),
	}
	if s.encryption != "" {
		input.ServerSideEncryption = s.encryption
	}
	acl.applyPut(input)

	_, err := s.client.PutObject(ctx, input)
	return err
}

// copyObject copies a single object inside the bucket. The copy carries the
// access settings of the source.
func (s *Storage) copyObject(ctx context.Context, srcKey, dstKey string) error {
	input := &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + (&url.URL{Path: srcKey}).EscapedPath()),
		Key:        aws.String(dstKey),
	}
	if s.encryption != "" {
		input.ServerSideEncryption = s.encryption
	}
	s.aclFor(ctx, srcKey).applyCopy(input)

	_, err := s.client.CopyObject(ctx, input)
	return err
}

func (s *Storage) deleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

// listAll returns every key below prefix, the prefix marker included.
func (s *Storage) listAll(ctx context.Context, prefix string) ([]types.Object, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []types.Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Contents...)
	}
	return objects, nil
}

// CopyRecursive implements filemanager.Storage. The first failure aborts
// the copy; objects copied so far stay in place.
func (s *Storage) CopyRecursive(ctx context.Context, source, target *filemanager.Item) error {
	return s.transfer(ctx, "copy", source, target, false)
}

// RenameRecursive implements filemanager.Storage as copy and delete. The
// first failure aborts the move; objects moved so far stay moved.
func (s *Storage) RenameRecursive(ctx context.Context, source, target *filemanager.Item) error {
	return s.transfer(ctx, "rename", source, target, true)
}

func (s *Storage) transfer(ctx context.Context, op string, source, target *filemanager.Item, remove bool) error {
	srcKey := s.keyOf(source.AbsolutePath())
	dstKey := s.keyOf(target.AbsolutePath())

	if !source.IsDirectory() {
		if err := s.copyObject(ctx, srcKey, dstKey); err != nil {
			return mapS3Error(op, source.RelativePath(), err)
		}
		if remove {
			if err := s.deleteObject(ctx, srcKey); err != nil {
				return mapS3Error(op, source.RelativePath(), err)
			}
		}
		return nil
	}

	srcPrefix := dirKey(srcKey)
	dstPrefix := dirKey(dstKey)

	objects, err := s.listAll(ctx, srcPrefix)
	if err != nil {
		return mapS3Error(op, source.RelativePath(), err)
	}
	// contents come before the folder holding them
	slices.Reverse(objects)

	if err := s.putMarker(ctx, dstPrefix, s.aclFor(ctx, srcPrefix)); err != nil {
		return mapS3Error(op, source.RelativePath(), err)
	}

	for _, obj := range objects {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		key := aws.ToString(obj.Key)
		rel := strings.TrimPrefix(key, srcPrefix)
		if rel == "" {
			continue
		}
		to := dstPrefix + rel

		if strings.HasSuffix(key, "/") {
			err = s.putMarker(ctx, to, s.aclFor(ctx, key))
		} else {
			err = s.copyObject(ctx, key, to)
		}
		if err == nil && remove {
			err = s.deleteObject(ctx, key)
		}
		if err != nil {
			return mapS3Error(op, s.relativeOf(key), err)
		}
	}

	if remove {
		if err := s.deleteObject(ctx, srcPrefix); err != nil && !isNotFound(err) {
			return mapS3Error(op, source.RelativePath(), err)
		}
	}
	return nil
}

// UnlinkRecursive implements filemanager.Storage. Folders are removed with
// batched DeleteObjects calls. The removal is verified afterwards.
func (s *Storage) UnlinkRecursive(ctx context.Context, target *filemanager.Item) error {
	key := s.keyOf(target.AbsolutePath())

	if target.IsDirectory() {
		key = dirKey(key)
		objects, err := s.listAll(ctx, key)
		if err != nil {
			return mapS3Error("unlink", target.RelativePath(), err)
		}
		if err := s.deleteBatches(ctx, objects); err != nil {
			return mapS3Error("unlink", target.RelativePath(), err)
		}
	} else if err := s.deleteObject(ctx, key); err != nil {
		return mapS3Error("unlink", target.RelativePath(), err)
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return filemanager.BackendError("unlink", target.RelativePath(), errors.New("object still exists after deletion"))
	case isNotFound(err):
		return nil
	default:
		s.Logger().Debug("deletion check failed", "key", key, "err", err)
		return nil
	}
}

func (s *Storage) deleteBatches(ctx context.Context, objects []types.Object) error {
	for batch := range slices.Chunk(objects, deleteBatchSize) {
		ids := make([]types.ObjectIdentifier, len(batch))
		for i, obj := range batch {
			ids[i] = types.ObjectIdentifier{Key: obj.Key}
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: ids,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("delete %s: %s: %s", aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message))
		}
	}
	return nil
}

// GetDirSummary implements filemanager.Storage with a deep listing. Folder
// markers count as folders; implicit folders are not counted.
func (s *Storage) GetDirSummary(ctx context.Context, dir string, summary *filemanager.Summary) error {
	prefix := dirKey(s.keyOf(s.Resolver().Absolute(dir)))

	objects, err := s.listAll(ctx, prefix)
	if err != nil {
		return mapS3Error("summary", dir, err)
	}

	for _, obj := range objects {
		key := aws.ToString(obj.Key)
		if key == prefix {
			continue
		}

		child := filemanager.NewItemFromStat(s, s.relativeOf(key), objectInfo(obj))
		if !filemanager.CountsInSummary(child) {
			continue
		}
		if child.IsDirectory() {
			summary.Folders++
			continue
		}
		summary.Files++
		summary.Size += aws.ToInt64(obj.Size)
	}
	return nil
}

// GetRootTotalSize implements filemanager.Storage
func (s *Storage) GetRootTotalSize(ctx context.Context) (int64, error) {
	return filemanager.RootTotalSize(ctx, s)
}

// GetFileSize implements filemanager.Storage
func (s *Storage) GetFileSize(ctx context.Context, abs string) (int64, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyOf(abs)),
	})
	if err != nil {
		return 0, mapS3Error("size", abs, err)
	}
	return aws.ToInt64(head.ContentLength), nil
}

// GetMimeType implements filemanager.Storage by sniffing the first bytes of
// the object.
func (s *Storage) GetMimeType(ctx context.Context, abs string) (string, error) {
	key := s.keyOf(abs)
	if key == "" || strings.HasSuffix(key, "/") {
		return filemanager.MIMETypeDirectory, nil
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=0-%d", filemanager.SniffLen-1)),
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "InvalidRange" {
			// empty object
			return filemanager.GuessContentType(key, nil), nil
		}
		return "", mapS3Error("mime", abs, err)
	}
	defer resp.Body.Close()
	return filemanager.DetectMIME(resp.Body, key), nil
}

// ReadFile implements filemanager.Storage with a ranged GetObject.
func (s *Storage) ReadFile(ctx context.Context, w http.ResponseWriter, item *filemanager.Item, opts filemanager.ReadOptions) error {
	size, err := s.GetFileSize(ctx, item.AbsolutePath())
	if err != nil {
		return err
	}
	rng, partial, err := filemanager.ParseRange(opts.Range, size)
	if err != nil {
		return filemanager.RejectRange(w, item.RelativePath(), size)
	}

	contentType, err := s.GetMimeType(ctx, item.AbsolutePath())
	if err != nil {
		return err
	}

	var body io.Reader = bytes.NewReader(nil)
	if size > 0 {
		input := &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.keyOf(item.AbsolutePath())),
		}
		if partial {
			input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End))
		}
		resp, err := s.client.GetObject(ctx, input)
		if err != nil {
			return mapS3Error("read", item.RelativePath(), err)
		}
		defer resp.Body.Close()
		body = resp.Body
	}

	if opts.Filename == "" {
		opts.Filename = item.Basename()
	}
	return filemanager.ServeRange(w, body, rng, partial, contentType, opts)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &notFound) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// mapS3Error maps S3 errors to filemanager errors
func mapS3Error(op, p string, err error) error {
	if isNotFound(err) {
		return filemanager.NewPathError(op, p, filemanager.LabelFileNotExist, fmt.Errorf("%w: %w", filemanager.ErrNotFound, err))
	}
	return filemanager.BackendError(op, p, err)
}

// Ensure Storage implements filemanager.Storage
var _ filemanager.Storage = (*Storage)(nil)
