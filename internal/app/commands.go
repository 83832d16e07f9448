package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dtran/mailflow/internal/model"
	"github.com/dtran/mailflow/internal/selection"
)

// requestTimeout bounds the one-shot commands issued from the UI, as opposed
// to the poller's own fetch timeout.
const requestTimeout = 15 * time.Second

type starResultMsg struct {
	id  string
	err error
}

type batchDoneMsg struct {
	action selection.Action
}

type sendDoneMsg struct {
	peer string
	err  error
}

type recStartedMsg struct {
	err error
}

type recTickMsg time.Time

type audioSentMsg struct {
	peer string
	err  error
}

type audioFetchedMsg struct {
	id   string
	clip model.AudioClip
	err  error
}

type draftSavedMsg struct {
	err error
}

type contactsSyncedMsg struct {
	recipients []string
}

func (m Model) starCmd(id string, starred bool) tea.Cmd {
	c := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return starResultMsg{id: id, err: c.Star(ctx, id, starred)}
	}
}

func (m Model) markReadCmd(id string) tea.Cmd {
	c := m.api
	log := m.log
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := c.MarkRead(ctx, id); err != nil {
			// The next poll repairs the local flag if the server
			// disagrees.
			log.Debug("mark read failed", "id", id, "err", err)
		}
		return nil
	}
}

func (m Model) markConversationReadCmd(peer string) tea.Cmd {
	c := m.api
	log := m.log
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := c.MarkConversationRead(ctx, peer); err != nil {
			log.Debug("mark conversation read failed", "peer", peer, "err", err)
		}
		return nil
	}
}

func (m Model) executeBatchCmd(batch *selection.Batch) tea.Cmd {
	sel := m.selection
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := sel.Execute(ctx, batch); err != nil {
			m.log.Warn("batch execute failed", "action", batch.Action, "err", err)
		}
		return batchDoneMsg{action: batch.Action}
	}
}

func (m Model) finishSendCmd(peer, tempID, text string) tea.Cmd {
	sender := m.sender
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return sendDoneMsg{peer: peer, err: sender.Finish(ctx, peer, tempID, text)}
	}
}

func (m Model) retrySendCmd(peer, tempID string) tea.Cmd {
	sender := m.sender
	conv := m.conv
	return func() tea.Msg {
		text := ""
		for _, msg := range conv.History(peer) {
			if msg.ID == tempID {
				text = msg.Body
				break
			}
		}
		if text == "" {
			return sendDoneMsg{peer: peer}
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return sendDoneMsg{peer: peer, err: sender.Retry(ctx, peer, tempID, text)}
	}
}

func (m Model) startRecordingCmd() tea.Cmd {
	p := m.pipeline
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := p.Start(ctx)
		return recStartedMsg{err: err}
	}
}

func (m Model) recTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return recTickMsg(t)
	})
}

func (m Model) sendAudioCmd(peer string, clip model.AudioClip) tea.Cmd {
	p := m.pipeline
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return audioSentMsg{peer: peer, err: p.Send(ctx, peer, clip)}
	}
}

func (m Model) fetchAudioCmd(id string, clip model.AudioClip) tea.Cmd {
	c := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		data, err := c.FetchAudio(ctx, clip.Ref)
		if err != nil {
			return audioFetchedMsg{id: id, err: err}
		}
		clip.Data = data
		return audioFetchedMsg{id: id, clip: clip}
	}
}

func (m Model) saveDraftCmd(draft model.Draft) tea.Cmd {
	c := m.api
	db := m.contactsDB
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		err := c.SaveDraft(ctx, draft)
		if err == nil && db != nil && draft.To != "" {
			if berr := db.Bump(ctx, draft.To); berr != nil {
				m.log.Debug("contact bump failed", "err", berr)
			}
		}
		return draftSavedMsg{err: err}
	}
}

// syncContacts refreshes the local contact cache from the server and loads
// the recipient suggestions for compose.
func (m Model) syncContacts() tea.Cmd {
	c := m.api
	db := m.contactsDB
	log := m.log
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		list, err := c.Contacts(ctx)
		if err != nil {
			log.Debug("contact sync failed", "err", err)
		} else if db != nil {
			if err := db.ReplaceAll(ctx, list); err != nil {
				log.Debug("contact cache update failed", "err", err)
			}
		}

		if db != nil {
			if cached, err := db.All(ctx); err == nil {
				list = cached
			}
		}

		recipients := make([]string, 0, len(list))
		for _, contact := range list {
			recipients = append(recipients, contact.Email)
		}
		return contactsSyncedMsg{recipients: recipients}
	}
}
