package cli

import (
	"context"
	"fmt"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/credseal"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/session"
)

// Register creates a new account, caches sealed credentials and signs the
// user in.
func (a *App) Register(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out, "Choose a password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Register(ctx, email, string(password)); err != nil {
		a.printErr(err)
		return err
	}

	a.cacheCredentials(ctx, email, password)
	fmt.Fprintf(a.out, "Welcome! Your account %s is ready.\n", email)
	a.afterSignIn(ctx)
	return nil
}

// Login authenticates. When a sealed credential blob is cached for the
// email, the password only unseals it locally and the cached refresh token
// goes on the wire instead of the password.
func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out, "Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if sealed, _ := a.local.Credential(ctx, email); sealed != nil {
		if creds, err := credseal.Open(sealed, password); err == nil {
			if err := a.auth.SignInWithRefreshToken(ctx, creds.RefreshToken); err == nil {
				a.afterSignIn(ctx)
				return nil
			}
			// Stale cached token; fall back to password sign-in.
		}
	}

	if err := a.auth.SignIn(ctx, email, string(password)); err != nil {
		a.printErr(err)
		return err
	}

	a.cacheCredentials(ctx, email, password)
	a.afterSignIn(ctx)
	return nil
}

// cacheCredentials seals the fresh refresh token under the password and
// stores it for the next run. Failures only cost the fast path.
func (a *App) cacheCredentials(ctx context.Context, email string, password []byte) {
	sealed, err := credseal.Seal(credseal.Credentials{
		RefreshToken: a.auth.RefreshToken(),
		UserID:       a.auth.UserID(),
		Email:        email,
	}, password)
	if err != nil {
		a.log.Warn(ctx, "sealing credentials failed", "error", err)
		return
	}
	if err := a.local.SetCredential(ctx, email, sealed); err != nil {
		a.log.Warn(ctx, "caching credentials failed", "error", err)
	}
}

// afterSignIn adopts the identity into the engine and auto-resumes the
// last-active plan when one is recorded.
func (a *App) afterSignIn(ctx context.Context) {
	a.engine.SetUser(a.auth.UserID())
	fmt.Fprintf(a.out, "Signed in as %s.\n", a.auth.Email())

	sess, err := a.engine.Resume(ctx)
	if err != nil {
		a.log.Warn(ctx, "auto-resume failed", "error", err)
		return
	}
	if sess == nil {
		fmt.Fprintln(a.out, "No plan in progress. Type 'new' to start planning.")
		return
	}

	fmt.Fprintf(a.out, "Resumed your plan (%s, %d messages).\n",
		session.StageTitle(sess.CurrentStage), len(sess.ChatHistory))
	if n := len(sess.ChatHistory); n > 0 {
		renderMessage(a.out, sess.ChatHistory[n-1])
	}
}

// ResetPassword asks the provider to send a reset email.
func (a *App) ResetPassword(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	if err := a.auth.SendPasswordReset(ctx, email); err != nil {
		a.printErr(err)
		return err
	}
	fmt.Fprintf(a.out, "Password reset email sent to %s.\n", email)
	return nil
}

// WhoAmI prints the signed-in identity.
func (a *App) WhoAmI(ctx context.Context) error {
	fmt.Fprintf(a.out, "%s (%s)\n", a.auth.Email(), a.auth.UserID())
	return nil
}

// Logout drops the token state and all in-memory planning state. The
// cached last-active pointer survives so the next login can resume.
func (a *App) Logout(ctx context.Context) error {
	a.auth.SignOut()
	a.engine.Reset()
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

// DeleteAccount removes everything the user owns: after reauthentication
// it deletes all session documents, the profile photo and document, the
// identity record, and finally the local pointers and cached credentials.
// The first failing step aborts the remainder; already-deleted data stays
// deleted. The identity record goes last, so a partial failure leaves an
// account that can still sign in and retry.
func (a *App) DeleteAccount(ctx context.Context) error {
	fmt.Fprintln(a.out, "This permanently deletes your account, profile and all plans.")
	password, err := GetPassword(a.out, "Enter password to confirm: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Reauthenticate(ctx, string(password)); err != nil {
		a.printErr(err)
		return err
	}

	userID := a.auth.UserID()
	email := a.auth.Email()

	if err := a.docs.DeleteAllSessions(ctx, userID); err != nil {
		a.printErr(fmt.Errorf("deleting plans: %w", err))
		return err
	}

	if key := a.profiles.PhotoKey(ctx, userID); key != "" {
		if err := a.photos.Delete(ctx, key); err != nil {
			a.printErr(fmt.Errorf("deleting profile photo: %w", err))
			return err
		}
	}
	if err := a.profiles.Delete(ctx, userID); err != nil {
		a.printErr(err)
		return err
	}

	if err := a.auth.DeleteAccount(ctx); err != nil {
		a.printErr(err)
		return err
	}

	if err := a.local.ClearLastActive(ctx, userID); err != nil {
		a.log.Warn(ctx, "clearing last-active pointer failed", "error", err)
	}
	if err := a.local.DeleteCredential(ctx, email); err != nil {
		a.log.Warn(ctx, "dropping cached credentials failed", "error", err)
	}

	a.engine.Reset()
	fmt.Fprintln(a.out, "Account deleted.")
	return nil
}
