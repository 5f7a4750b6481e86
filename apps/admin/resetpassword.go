package main

import (
	"context"

	"github.com/internquest/backend/core/identity"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	id, err := cli.ids.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := identity.CheckPassword(pwd, id.Email, id.DisplayName); err != nil {
		return err
	}
	return cli.ids.SetPassword(ctx, id.UID, pwd)
}
