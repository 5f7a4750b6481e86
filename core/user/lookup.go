package user

import (
	"context"
	"strings"

	"github.com/internquest/backend/core"
)

// blockExtractor reports whether one historical shape of a profile marks it blocked.
type blockExtractor struct {
	shape string
	match func(data map[string]interface{}) bool
}

// blockExtractors are tried in order. Profiles written over the years carry any of
// these shapes, sometimes several at once; a match on any of them blocks the account.
var blockExtractors = []blockExtractor{
	{shape: "blockInfo.isBlocked", match: func(data map[string]interface{}) bool {
		info, ok := core.MapField(data, fieldBlockInfo)
		return ok && core.BoolField(info, fieldIsBlocked)
	}},
	{shape: "isBlocked", match: flagExtractor(fieldIsBlocked)},
	{shape: "blocked", match: flagExtractor("blocked")},
	{shape: "accountBlocked", match: flagExtractor("accountBlocked")},
	{shape: "status", match: statusExtractor("status")},
	{shape: "accountStatus", match: statusExtractor("accountStatus")},
}

func flagExtractor(field string) func(map[string]interface{}) bool {
	return func(data map[string]interface{}) bool {
		return core.BoolField(data, field)
	}
}

func statusExtractor(field string) func(map[string]interface{}) bool {
	return func(data map[string]interface{}) bool {
		return strings.EqualFold(core.StringField(data, field), "blocked")
	}
}

// BlockOf returns the block of a profile, or nil when none of the known shapes marks it blocked.
func BlockOf(data map[string]interface{}) *Block {
	for _, ex := range blockExtractors {
		if ex.match(data) {
			return blockDetails(data)
		}
	}
	return nil
}

// blockDetails reads the reason and the blocking actor, preferring the nested shape.
func blockDetails(data map[string]interface{}) *Block {
	b := &Block{
		Reason:    core.StringField(data, fieldBlockReason),
		BlockedBy: core.StringField(data, fieldBlockedBy),
	}
	if info, ok := core.MapField(data, fieldBlockInfo); ok {
		if reason := core.StringField(info, fieldReason); reason != "" {
			b.Reason = reason
		}
		if by := core.StringField(info, fieldBlockedBy); by != "" {
			b.BlockedBy = by
		}
	}
	return b
}

// LookupEmail resolves a student identifier to the contact email of its profile.
// The exact identifier is tried first, then the identifier without hyphens.
// A blocked profile yields its Block and no email. An unknown identifier and a
// profile without email both yield an empty result.
func (svc *Service) LookupEmail(ctx context.Context, identifier string) (LookupResult, error) {
	identifier = core.CleanString(identifier)
	if identifier == "" {
		return LookupResult{}, core.NewError(core.KindInvalidArgument, "%s is required", svc.canonical)
	}

	doc, found, err := svc.findByIdentifier(ctx, identifier)
	if err != nil {
		return LookupResult{}, core.Internal(err, "looking up identifier")
	}
	if !found {
		return LookupResult{}, nil
	}

	if block := BlockOf(doc.Data); block != nil {
		return LookupResult{Block: block}, nil
	}
	if email := core.StringField(doc.Data, fieldEmail); email != "" {
		return LookupResult{Email: &email}, nil
	}
	return LookupResult{}, nil
}

func (svc *Service) findByIdentifier(ctx context.Context, identifier string) (core.Document, bool, error) {
	candidates := []string{identifier}
	if stripped := strings.ReplaceAll(identifier, "-", ""); stripped != identifier && stripped != "" {
		candidates = append(candidates, stripped)
	}
	for _, candidate := range candidates {
		docs, err := svc.store.FindEqual(ctx, svc.profiles, svc.canonical, candidate, 1)
		if err != nil {
			return core.Document{}, false, err
		}
		if len(docs) > 0 {
			return docs[0], true, nil
		}
	}
	return core.Document{}, false, nil
}
