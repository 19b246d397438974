package cli

import (
	"context"
	"fmt"

	"github.com/kzxian1201/medical-tourism-planning-system/internal/session"
)

// NewPlan starts a fresh planning conversation seeded from the profile.
func (a *App) NewPlan(ctx context.Context) error {
	seed := a.profiles.Seed(ctx, a.auth.UserID())

	fmt.Fprintln(a.out, "Starting a new plan...")
	sess, err := a.engine.StartNewPlan(ctx, seed)
	if err != nil {
		a.printErr(err)
		a.renderLastLocal()
		return err
	}

	fmt.Fprintf(a.out, "Plan %s started.\n", sess.SessionID)
	if n := len(sess.ChatHistory); n > 0 {
		renderMessage(a.out, sess.ChatHistory[n-1])
	}
	return nil
}

// Plans lists the user's saved plans, most recent first.
func (a *App) Plans(ctx context.Context) error {
	plans := a.engine.ListPlans(ctx)
	if len(plans) == 0 {
		fmt.Fprintln(a.out, "No saved plans.")
		return nil
	}

	active := a.engine.Snapshot().SessionID
	for _, p := range plans {
		marker := "  "
		if p.SessionID == active {
			marker = "* "
		}
		when, _ := session.ParseStamp(p.Timestamp)
		fmt.Fprintf(a.out, "%s%s  %s  %d message(s)  %s\n",
			marker, p.SessionID, session.StageTitle(p.CurrentStage), p.Messages,
			when.Format("2006-01-02 15:04"))
	}
	return nil
}

// OpenPlan loads a saved plan and replays its transcript.
func (a *App) OpenPlan(ctx context.Context, planID string) error {
	sess, err := a.engine.LoadPlan(ctx, planID)
	if err != nil {
		a.printErr(err)
		return err
	}

	fmt.Fprintf(a.out, "Opened plan %s (%s).\n", sess.SessionID, session.StageTitle(sess.CurrentStage))
	for _, m := range sess.ChatHistory {
		renderMessage(a.out, m)
	}
	return nil
}

// DeletePlan removes a saved plan.
func (a *App) DeletePlan(ctx context.Context, planID string) error {
	if err := a.engine.DeletePlan(ctx, planID); err != nil {
		a.printErr(err)
		return err
	}
	fmt.Fprintf(a.out, "Plan %s deleted.\n", planID)
	return nil
}

// Say sends one user utterance through the planning backend and renders
// the agent's reply.
func (a *App) Say(ctx context.Context, text string) error {
	if !a.engine.Active() {
		fmt.Fprintln(a.out, "No active plan. Type 'new' to start one or 'plans' to open one.")
		return nil
	}

	renderMessage(a.out, session.Message{
		Sender:  session.SenderUser,
		Type:    session.ContentText,
		Content: session.TextContent{Prompt: text},
	})

	reply, err := a.engine.SubmitTurn(ctx, text)
	if err != nil {
		a.renderLastLocal()
		return err
	}
	renderMessage(a.out, *reply)
	return nil
}

// renderLastLocal shows the synthetic error message a failed turn appended
// to local history.
func (a *App) renderLastLocal() {
	history := a.engine.Snapshot().ChatHistory
	if n := len(history); n > 0 {
		renderMessage(a.out, history[n-1])
	}
}
