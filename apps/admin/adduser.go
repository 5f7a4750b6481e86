package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/internquest/backend/core"
	"github.com/internquest/backend/core/identity"
	"github.com/internquest/backend/core/role"
)

// addUser updates or creates a console account and its profile.
func (cli *commandLine) addUser(email, name, rawRole, pwd string) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)

	r, ok := role.Normalize(rawRole)
	if !ok {
		return fmt.Errorf("invalid role %q", rawRole)
	}
	if err := identity.CheckPassword(pwd, email, name); err != nil {
		return err
	}

	id, err := cli.ids.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if err = cli.ids.SetPassword(ctx, id.UID, pwd); err != nil {
			return err
		}
	case errors.Cause(err) == identity.ErrNotFound:
		id, err = cli.ids.CreateUser(ctx, identity.NewIdentity{Email: email, DisplayName: name, Password: pwd, EmailVerified: true})
		if err != nil {
			return err
		}
	default:
		return err
	}
	if err = cli.ids.SetCustomClaims(ctx, id.UID, identity.CustomClaims{Role: string(r)}); err != nil {
		return err
	}

	profile := map[string]interface{}{
		"email":     id.Email,
		"username":  name,
		"role":      string(r),
		"updatedAt": core.ServerTimestamp,
	}
	err = cli.store.Create(ctx, cli.conf.ProfileCollection, id.UID, profile)
	if errors.Is(err, core.ErrDocExists) {
		err = cli.store.Commit(ctx, []core.DocWrite{{Collection: cli.conf.ProfileCollection, ID: id.UID, Set: profile}})
	}
	if err != nil {
		return errors.Wrap(err, "writing profile")
	}
	fmt.Fprintf(cli.out, "%s account %s (%s) is ready\n", r, id.Email, id.UID)
	return nil
}
