package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/common"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/docstore"
	"github.com/kzxian1201/medical-tourism-planning-system/internal/profile"
)

// ProfileShow prints the profile document and, when a photo is stored, a
// short-lived viewing link for it.
func (a *App) ProfileShow(ctx context.Context) error {
	doc, err := a.profiles.Get(ctx, a.auth.UserID())
	if errors.Is(err, common.ErrNotFound) {
		fmt.Fprintln(a.out, "No profile yet. Use 'profile set <field> <value>' to create one.")
		return nil
	}
	if err != nil {
		a.printErr(err)
		return err
	}

	fmt.Fprintln(a.out, "Profile:")
	renderFields(a.out, "  ", doc)

	if key, _ := doc[profile.FieldPhotoKey].(string); key != "" {
		if url, err := a.photos.ViewURL(ctx, key); err == nil {
			fmt.Fprintf(a.out, "  photo link (15 min): %s\n", url)
		}
	}
	return nil
}

// ProfileSet saves one profile field.
func (a *App) ProfileSet(ctx context.Context, field, value string) error {
	err := a.profiles.Save(ctx, a.auth.UserID(), docstore.Doc{field: value})
	if err != nil {
		a.printErr(err)
		return err
	}
	fmt.Fprintf(a.out, "Profile %s saved.\n", field)
	return nil
}

// Photo uploads a profile photo and records its storage key.
func (a *App) Photo(ctx context.Context, path string) error {
	userID := a.auth.UserID()

	key, err := a.photos.Upload(ctx, userID, path)
	if err != nil {
		a.printErr(err)
		return err
	}
	if err := a.profiles.SetPhotoKey(ctx, userID, key); err != nil {
		a.printErr(err)
		return err
	}
	fmt.Fprintln(a.out, "Profile photo uploaded.")
	return nil
}
