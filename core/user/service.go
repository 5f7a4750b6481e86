package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/authz"
	"github.com/internquest/backend/core/identity"
	"github.com/internquest/backend/core/role"
)

const listPageSize = 1000

// IdentityProvider is the part of the identity provider the account workflows use.
type IdentityProvider interface {
	CreateUser(ctx context.Context, ni identity.NewIdentity) (identity.Identity, error)
	SetCustomClaims(ctx context.Context, uid string, claims identity.CustomClaims) error
	GetUser(ctx context.Context, uid string) (identity.Identity, error)
	ListUsers(ctx context.Context, pageToken string, max int) ([]identity.Identity, string, error)
	SetDisabled(ctx context.Context, uid string, disabled bool) error
	PasswordSetupLink(ctx context.Context, email, callbackURL string) (string, error)
	CheckCallbackURL(raw string) error
}

var _ IdentityProvider = (*identity.Service)(nil)

type Service struct {
	ids       IdentityProvider
	store     core.DocStore
	mailSvc   core.EmailService
	validator *core.Validator
	logger    core.Logger

	profiles  string
	canonical string
	linkTTL   time.Duration
}

func NewService(
	ids IdentityProvider,
	store core.DocStore,
	mailSvc core.EmailService,
	validator *core.Validator,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		ids:       ids,
		store:     store,
		mailSvc:   mailSvc,
		validator: validator,
		logger:    logger,
		profiles:  conf.ProfileCollection,
		canonical: conf.CanonicalField,
		linkTTL:   conf.PasswordResetTimeoutDelta,
	}
}

// CreateWithRole creates a console account for na.Role and emails its owner a password setup link.
//
// The steps are not transactional. Once the identity exists, a failure of a later
// step leaves it in place and is reported as INTERNAL with the identity's uid so
// an operator can finish or remove it.
func (svc *Service) CreateWithRole(ctx context.Context, caller *authz.Caller, na NewAccount) error {
	_, target, err := authz.RequireCanCreate(caller, na.Role)
	if err != nil {
		return err
	}

	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Username = core.CleanString(na.Username)
	na.CallbackURL = core.CleanString(na.CallbackURL)
	if err := svc.validator.Check(na); err != nil {
		return err
	}
	if err := svc.ids.CheckCallbackURL(na.CallbackURL); err != nil {
		return identityError(err)
	}
	sections := NormalizeSections(na.Sections)

	id, err := svc.ids.CreateUser(ctx, identity.NewIdentity{Email: na.Email, DisplayName: na.Username})
	if err != nil {
		return identityError(err)
	}

	fail := func(step string, err error) error {
		svc.logger.Error(
			"account provisioning incomplete",
			err,
			map[string]interface{}{"uid": id.UID, "step": step, "role": target},
			caller.Person(),
		)
		return core.Internal(err, fmt.Sprintf("%s for account %s", step, id.UID))
	}

	claims := identity.CustomClaims{Role: string(target), MustSetPassword: true}
	if err := svc.ids.SetCustomClaims(ctx, id.UID, claims); err != nil {
		return fail("assigning role", err)
	}

	sectionsData := make([]interface{}, 0, len(sections))
	for _, s := range sections {
		sectionsData = append(sectionsData, s.data())
	}
	profile := map[string]interface{}{
		fieldEmail:     id.Email,
		fieldUsername:  na.Username,
		fieldRole:      string(target),
		fieldSections:  sectionsData,
		fieldCreatedAt: core.ServerTimestamp,
	}
	if err := svc.store.Create(ctx, svc.profiles, id.UID, profile); err != nil {
		return fail("creating profile", err)
	}

	link, err := svc.ids.PasswordSetupLink(ctx, id.Email, na.CallbackURL)
	if err != nil {
		return fail("generating password setup link", err)
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: na.Username, Address: id.Email}},
		Subject:      "Your " + roleTitle(target) + " account",
		TemplateName: "account_invite_" + string(target),
		TemplateData: inviteData{
			Name:      na.Username,
			Email:     id.Email,
			Link:      link,
			ExpiresIn: humanDuration(svc.linkTTL),
			Sections:  sections,
		},
	}
	if err := svc.mailSvc.SendMessages(ctx, msg); err != nil {
		return fail("sending invitation", err)
	}

	svc.logger.Info("account created", map[string]interface{}{"uid": id.UID, "role": target}, caller.Person())
	return nil
}

// ProvisionAccount creates an account with a known password. Admin only.
// An empty role provisions a student account; any other role must be creatable by the caller.
func (svc *Service) ProvisionAccount(ctx context.Context, caller *authz.Caller, req ProvisionRequest) (ProvisionResult, error) {
	callerRole, err := authz.RequireRole(caller, "provisionAccount", role.Admin)
	if err != nil {
		return ProvisionResult{}, err
	}

	req.Email = core.CleanString(req.Email, true /* lower */)
	req.Name = core.CleanString(req.Name)
	req.StudentID = core.CleanString(req.StudentID)
	if err := svc.validator.Check(req); err != nil {
		return ProvisionResult{}, err
	}

	claim := StudentRole
	if raw := core.CleanString(req.Role, true /* lower */); raw != "" && raw != StudentRole {
		target, ok := role.Normalize(raw)
		if !ok {
			return ProvisionResult{}, core.NewError(core.KindInvalidArgument, "invalid role %q", req.Role)
		}
		if !role.CanCreate(callerRole, target) {
			return ProvisionResult{}, core.NewError(core.KindPermissionDenied, "role %s cannot create %s accounts", callerRole, target)
		}
		claim = string(target)
	}
	if err := identity.CheckPassword(req.Password, req.Email, req.Name, req.StudentID); err != nil {
		return ProvisionResult{}, err
	}

	id, err := svc.ids.CreateUser(ctx, identity.NewIdentity{Email: req.Email, DisplayName: req.Name, Password: req.Password})
	if err != nil {
		return ProvisionResult{}, identityError(err)
	}
	if err := svc.ids.SetCustomClaims(ctx, id.UID, identity.CustomClaims{Role: claim}); err != nil {
		return ProvisionResult{}, core.Internal(err, "assigning role for account "+id.UID)
	}

	profile := map[string]interface{}{
		fieldEmail:     id.Email,
		fieldName:      req.Name,
		fieldRole:      claim,
		fieldCreatedAt: core.ServerTimestamp,
	}
	if req.StudentID != "" {
		profile[svc.canonical] = req.StudentID
	}
	if err := svc.store.Create(ctx, svc.profiles, id.UID, profile); err != nil {
		return ProvisionResult{}, core.Internal(err, "creating profile for account "+id.UID)
	}
	return ProvisionResult{UID: id.UID, Role: claim}, nil
}

// ListManaged lists the console accounts whose role the caller may see.
func (svc *Service) ListManaged(ctx context.Context, caller *authz.Caller) ([]ManagedUser, error) {
	callerRole, err := authz.RequireRole(caller, "listUsers", role.Admin, role.Coordinator)
	if err != nil {
		return nil, err
	}

	users := make([]ManagedUser, 0)
	pageToken := ""
	for {
		ids, next, err := svc.ids.ListUsers(ctx, pageToken, listPageSize)
		if err != nil {
			return nil, core.Internal(err, "listing users")
		}
		for _, id := range ids {
			r, ok := role.Normalize(id.Claims.Role)
			if !ok || !role.CanSee(callerRole, r) {
				continue
			}
			users = append(users, managedUser(id, r))
		}
		if next == "" {
			return users, nil
		}
		pageToken = next
	}
}

// SetBlocked blocks or unblocks an account. Console accounts can only be blocked by
// the roles allowed to create them.
func (svc *Service) SetBlocked(ctx context.Context, caller *authz.Caller, req BlockRequest) error {
	callerRole, err := authz.RequireRole(caller, "setUserBlocked", role.Admin, role.Coordinator)
	if err != nil {
		return err
	}
	req.UID = core.CleanString(req.UID)
	req.Reason = core.CleanString(req.Reason)
	if err := svc.validator.Check(req); err != nil {
		return err
	}
	if req.UID == caller.UID {
		return core.NewError(core.KindInvalidArgument, "you cannot block your own account")
	}

	doc, err := svc.store.Get(ctx, svc.profiles, req.UID)
	if err != nil {
		if errors.Is(err, core.ErrDocNotFound) {
			return core.NewError(core.KindNotFound, "user not found")
		}
		return core.Internal(err, "getting profile")
	}
	if target, ok := role.Normalize(core.StringField(doc.Data, fieldRole)); ok && !role.CanCreate(callerRole, target) {
		return core.NewError(core.KindPermissionDenied, "role %s cannot block %s accounts", callerRole, target)
	}

	if err := svc.store.Commit(ctx, []core.DocWrite{blockWrite(svc.profiles, doc, req, caller.UID)}); err != nil {
		return core.Internal(err, "updating profile")
	}
	if err := svc.ids.SetDisabled(ctx, req.UID, req.Blocked); err != nil && !errors.Is(err, identity.ErrNotFound) {
		return core.Internal(err, "updating identity")
	}

	svc.logger.Info("account block updated", map[string]interface{}{"uid": req.UID, "blocked": req.Blocked}, caller.Person())
	return nil
}

// blockWrite writes the nested block shape and the flat flag. Unblocking also clears
// every legacy shape that would still mark the profile blocked.
func blockWrite(coll string, doc core.Document, req BlockRequest, by string) core.DocWrite {
	w := core.DocWrite{Collection: coll, ID: doc.ID, Set: map[string]interface{}{fieldUpdatedAt: core.ServerTimestamp}}
	if req.Blocked {
		w.Set[fieldBlockInfo] = map[string]interface{}{
			fieldIsBlocked: true,
			fieldReason:    req.Reason,
			fieldBlockedBy: by,
			fieldBlockedAt: core.ServerTimestamp,
		}
		w.Set[fieldIsBlocked] = true
		return w
	}

	w.Set[fieldBlockInfo] = map[string]interface{}{fieldIsBlocked: false}
	w.Set[fieldIsBlocked] = false
	w.Unset = []string{"blocked", "accountBlocked", fieldBlockReason, fieldBlockedBy}
	for _, field := range []string{"status", "accountStatus"} {
		if strings.EqualFold(core.StringField(doc.Data, field), "blocked") {
			w.Set[field] = "active"
		}
	}
	return w
}

// identityError classifies the identity provider errors of an account creation.
func identityError(err error) error {
	switch errors.Cause(err) {
	case identity.ErrEmailExists:
		return core.WrapError(err, core.KindAlreadyExists, "%s", err.Error())
	case identity.ErrInvalidEmail, identity.ErrUntrustedCallback:
		return core.WrapError(err, core.KindInvalidArgument, "%s", err.Error())
	}
	return core.Internal(err, "creating identity")
}

func managedUser(id identity.Identity, r role.Role) ManagedUser {
	u := ManagedUser{
		UID:           id.UID,
		Email:         id.Email,
		DisplayName:   id.DisplayName,
		Role:          r,
		Disabled:      id.Disabled,
		EmailVerified: id.EmailVerified,
		CreatedAt:     id.CreatedAt,
	}
	if !id.LastLogin.IsZero() {
		lastLogin := id.LastLogin
		u.LastLogin = &lastLogin
	}
	return u
}

func roleTitle(r role.Role) string {
	for _, info := range role.Roles {
		if info.Value == r {
			return info.Name
		}
	}
	return string(r)
}

// humanDuration renders d in whole days, or hours below a day.
func humanDuration(d time.Duration) string {
	plural := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	if days := int(d / (24 * time.Hour)); days >= 1 {
		return plural(days, "day")
	}
	hours := int(d / time.Hour)
	if hours < 1 {
		hours = 1
	}
	return plural(hours, "hour")
}
