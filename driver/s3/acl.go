package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gobeaver/filemanager"
)

// aclParams holds the access settings sent with PutObject and CopyObject.
// S3 rejects requests carrying both a canned ACL and explicit grants, so
// only one of the two forms is ever set.
type aclParams struct {
	canned types.ObjectCannedACL

	grantFullControl string
	grantRead        string
	grantReadACP     string
	grantWriteACP    string
}

func (p aclParams) hasGrants() bool {
	return p.grantFullControl != "" || p.grantRead != "" || p.grantReadACP != "" || p.grantWriteACP != ""
}

func (p aclParams) applyPut(in *s3.PutObjectInput) {
	if p.hasGrants() {
		in.GrantFullControl = optional(p.grantFullControl)
		in.GrantRead = optional(p.grantRead)
		in.GrantReadACP = optional(p.grantReadACP)
		in.GrantWriteACP = optional(p.grantWriteACP)
		return
	}
	in.ACL = p.canned
}

func (p aclParams) applyCopy(in *s3.CopyObjectInput) {
	if p.hasGrants() {
		in.GrantFullControl = optional(p.grantFullControl)
		in.GrantRead = optional(p.grantRead)
		in.GrantReadACP = optional(p.grantReadACP)
		in.GrantWriteACP = optional(p.grantWriteACP)
		return
	}
	in.ACL = p.canned
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// aclFor returns the access settings a new object inherits from the object
// at key. With the default policy the configured canned ACL is used. With
// the inherit policy the grants of key are copied; when key has no ACL of
// its own, as for implicit folders, the canned ACL applies.
func (s *Storage) aclFor(ctx context.Context, key string) aclParams {
	defaults := aclParams{canned: s.defaultACL}
	if s.aclPolicy != filemanager.ACLPolicyInherit {
		return defaults
	}

	out, err := s.client.GetObjectAcl(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.Logger().Debug("acl lookup failed, using default acl", "key", key, "err", err)
		return defaults
	}

	params := grantsToParams(out.Grants)
	if !params.hasGrants() {
		return defaults
	}
	return params
}

// grantsToParams converts the grants of GetObjectAcl into grant headers.
// Grantees sharing a permission are joined with commas.
func grantsToParams(grants []types.Grant) aclParams {
	byPermission := make(map[types.Permission][]string)
	for _, g := range grants {
		if g.Grantee == nil {
			continue
		}
		if grantee := granteeHeader(g.Grantee); grantee != "" {
			byPermission[g.Permission] = append(byPermission[g.Permission], grantee)
		}
	}

	join := func(p types.Permission) string {
		return strings.Join(byPermission[p], ", ")
	}
	return aclParams{
		grantFullControl: join(types.PermissionFullControl),
		grantRead:        join(types.PermissionRead),
		grantReadACP:     join(types.PermissionReadAcp),
		grantWriteACP:    join(types.PermissionWriteAcp),
	}
}

func granteeHeader(g *types.Grantee) string {
	switch {
	case aws.ToString(g.ID) != "":
		return fmt.Sprintf("id=%q", aws.ToString(g.ID))
	case aws.ToString(g.URI) != "":
		return fmt.Sprintf("uri=%q", aws.ToString(g.URI))
	case aws.ToString(g.EmailAddress) != "":
		return fmt.Sprintf("emailAddress=%q", aws.ToString(g.EmailAddress))
	default:
		return ""
	}
}
