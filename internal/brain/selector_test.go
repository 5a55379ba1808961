package brain_test

import (
	"context"
	"math/rand"
	"strings"

	"basegraph.app/scribe/internal/brain"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	researcher = brain.ParticipantName("Researcher")
	writer     = brain.ParticipantName("Writer")
	editor     = brain.ParticipantName("Editor")
)

var testRoles = brain.Roles{Researcher: researcher, Writer: writer, Editor: editor}

const completeDraft = `## Executive Summary
Revenue grew 12%.

## Financial Performance
Margins expanded.

## Outlook and Guidance
Growth continues.

DRAFT COMPLETE FOR YOUR REVIEW`

// conversation drives a StateMachine by hand.
type conversation struct {
	ctx     context.Context
	sm      *brain.StateMachine
	history []brain.Message
}

func newConversation() *conversation {
	sm, err := brain.NewStateMachine(testRoles, brain.DefaultPolicy(), nil)
	Expect(err).NotTo(HaveOccurred())
	return &conversation{
		ctx:     context.Background(),
		sm:      sm,
		history: []brain.Message{{Speaker: brain.UserSpeaker, Text: "Write a report on Contoso."}},
	}
}

func (c *conversation) next() brain.ParticipantName {
	selected, err := c.sm.SelectNext(c.ctx, c.history)
	Expect(err).NotTo(HaveOccurred())
	return selected
}

func (c *conversation) say(speaker brain.ParticipantName, text string) {
	c.history = append(c.history, brain.Message{Speaker: speaker, Text: text, Sequence: len(c.history)})
}

// toReview runs research and drafting and returns with the editor selected
// for its first review turn.
func (c *conversation) toReview() {
	Expect(c.next()).To(Equal(researcher))
	c.say(researcher, "Research complete. Revenue and margins attached.")
	Expect(c.next()).To(Equal(writer))
	c.say(writer, completeDraft)
	Expect(c.next()).To(Equal(editor))
	Expect(c.sm.Phase()).To(Equal(brain.PhaseReview))
}

var _ = Describe("StateMachine", func() {
	var c *conversation

	BeforeEach(func() {
		c = newConversation()
	})

	It("rejects invalid roles", func() {
		_, err := brain.NewStateMachine(brain.Roles{Researcher: "A", Writer: "A", Editor: "B"}, brain.DefaultPolicy(), nil)
		Expect(err).To(HaveOccurred())
	})

	It("starts in research with the researcher", func() {
		Expect(c.next()).To(Equal(researcher))
		Expect(c.sm.Phase()).To(Equal(brain.PhaseResearch))
		Expect(c.sm.State().ConsecutiveTurns).To(Equal(1))
	})

	It("returns the context error when cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.sm.SelectNext(ctx, c.history)
		Expect(err).To(MatchError(context.Canceled))
	})

	Context("Scenario 1: implicit research completion", func() {
		It("moves to drafting after the third long message", func() {
			long := strings.Repeat("Revenue rose on cloud demand. ", 40)

			for i := 0; i < 3; i++ {
				Expect(c.next()).To(Equal(researcher), "selection %d", i+1)
				Expect(c.sm.Phase()).To(Equal(brain.PhaseResearch))
				c.say(researcher, long)
			}

			Expect(c.next()).To(Equal(writer))
			Expect(c.sm.Phase()).To(Equal(brain.PhaseDrafting))
			Expect(c.sm.State().ResearchComplete).To(BeTrue())
		})
	})

	It("forces drafting once the researcher exhausts its streak", func() {
		for i := 0; i < 5; i++ {
			Expect(c.next()).To(Equal(researcher))
			c.say(researcher, "Still digging.")
		}

		Expect(c.next()).To(Equal(writer))
		Expect(c.sm.Phase()).To(Equal(brain.PhaseDrafting))
		Expect(c.sm.State().ResearchComplete).To(BeFalse())

		c.say(writer, "Outline only.")
		Expect(c.next()).To(Equal(editor))
		Expect(c.sm.Phase()).To(Equal(brain.PhaseReview))
	})

	It("keeps the writer while the draft is incomplete", func() {
		Expect(c.next()).To(Equal(researcher))
		c.say(researcher, "Findings complete.")
		Expect(c.next()).To(Equal(writer))
		c.say(writer, "DRAFT COMPLETE FOR YOUR REVIEW")

		Expect(c.next()).To(Equal(writer))
		Expect(c.sm.State().DraftComplete).To(BeFalse())
	})

	Context("Scenario 2: draft completion", func() {
		It("marks the draft complete and hands over to review", func() {
			Expect(c.next()).To(Equal(researcher))
			c.say(researcher, "Here are the financial results.")
			Expect(c.next()).To(Equal(writer))
			c.say(writer, completeDraft)

			Expect(c.next()).To(Equal(editor))
			Expect(c.sm.State().DraftComplete).To(BeTrue())
			Expect(c.sm.Phase()).To(Equal(brain.PhaseReview))
		})
	})

	Context("Scenario 3: negated approval with a revision request", func() {
		It("treats the message as a revision request and selects the writer", func() {
			text := "This is not yet REPORT APPROVED, please REVISE the outlook section"
			Expect(brain.DetectApproval(text)).To(BeFalse())
			Expect(brain.DetectRevisionRequest(text)).To(BeTrue())

			c.toReview()
			c.say(editor, text)

			Expect(c.next()).To(Equal(writer))
			Expect(c.sm.Phase()).To(Equal(brain.PhaseRevision))
			state := c.sm.State()
			Expect(state.RevisionRequested).To(BeTrue())
			Expect(state.DraftComplete).To(BeFalse())
		})
	})

	It("gives the editor a second review pass before final review", func() {
		c.toReview()
		c.say(editor, "Looks solid overall.")
		Expect(c.next()).To(Equal(editor))
		Expect(c.sm.Phase()).To(Equal(brain.PhaseReview))

		c.say(editor, "Looks solid overall.")
		Expect(c.next()).To(Equal(editor))
		Expect(c.sm.Phase()).To(Equal(brain.PhaseFinalReview))
	})

	It("lets the approval phrase override revision wording", func() {
		c.toReview()
		c.say(editor, "REPORT APPROVED. Minor change suggestions can wait.")

		c.next()
		state := c.sm.State()
		Expect(state.RevisionRequested).To(BeFalse())
		Expect(state.DraftComplete).To(BeTrue())
	})

	Context("Revision", func() {
		BeforeEach(func() {
			c.toReview()
			c.say(editor, "Please REVISE the outlook section.")
			Expect(c.next()).To(Equal(writer))
			Expect(c.sm.Phase()).To(Equal(brain.PhaseRevision))
		})

		It("returns to final review when a revised draft arrives", func() {
			c.say(writer, completeDraft)

			Expect(c.next()).To(Equal(editor))
			Expect(c.sm.Phase()).To(Equal(brain.PhaseFinalReview))
		})

		It("loops back to the researcher when more data is needed", func() {
			for i := 0; i < 4; i++ {
				c.say(writer, "I need more data on segment margins.")
				Expect(c.next()).To(Equal(writer))
			}
			c.say(writer, "I need more data on segment margins.")

			Expect(c.next()).To(Equal(researcher))
			Expect(c.sm.Phase()).To(Equal(brain.PhaseRevision))
		})

		It("moves on to final review when the writer stalls", func() {
			for i := 0; i < 4; i++ {
				c.say(writer, "Working on it.")
				Expect(c.next()).To(Equal(writer))
			}
			c.say(writer, "Working on it.")

			Expect(c.next()).To(Equal(editor))
			Expect(c.sm.Phase()).To(Equal(brain.PhaseFinalReview))
		})
	})

	Context("FinalReview", func() {
		BeforeEach(func() {
			c.toReview()
			c.say(editor, "Looks solid overall.")
			c.next()
			c.say(editor, "Looks solid overall.")
			Expect(c.next()).To(Equal(editor))
			Expect(c.sm.Phase()).To(Equal(brain.PhaseFinalReview))
		})

		It("keeps the editor for a confirmation turn after approval", func() {
			c.say(editor, "REPORT APPROVED")
			Expect(c.next()).To(Equal(editor))
		})

		It("keeps the editor when nothing is pending", func() {
			for i := 0; i < 7; i++ {
				c.say(editor, "Reading once more.")
				Expect(c.next()).To(Equal(editor))
			}
		})

		Context("Scenario 5: writer revision cap", func() {
			It("clears the revision request and selects the editor after five writer turns", func() {
				c.say(editor, "Please REVISE the outlook section.")

				for i := 0; i < 5; i++ {
					Expect(c.next()).To(Equal(writer), "writer turn %d", i+1)
					Expect(c.sm.State().RevisionRequested).To(BeTrue())
					c.say(writer, "Working on it.")
				}

				Expect(c.next()).To(Equal(editor))
				Expect(c.sm.State().RevisionRequested).To(BeFalse())
				Expect(c.sm.Phase()).To(Equal(brain.PhaseFinalReview))
			})
		})
	})

	It("records phase transitions with history positions", func() {
		c.toReview()

		Expect(c.sm.Transitions()).To(Equal([]brain.PhaseTransition{
			{From: brain.PhaseResearch, To: brain.PhaseDrafting, At: 2},
			{From: brain.PhaseDrafting, To: brain.PhaseReview, At: 3},
		}))
	})

	It("never returns to research or drafting", func() {
		rng := rand.New(rand.NewSource(7))
		texts := []string{
			"Research complete.",
			completeDraft,
			"REPORT APPROVED",
			"Please REVISE this.",
			"I need more data.",
			"Looks solid overall.",
			"This is not yet REPORT APPROVED",
			strings.Repeat("x", 1200),
			"",
		}

		for run := 0; run < 200; run++ {
			c := newConversation()
			left := map[brain.Phase]bool{}
			prev := c.sm.Phase()

			for turn := 0; turn < 40; turn++ {
				speaker := c.next()
				phase := c.sm.Phase()
				if phase != prev {
					left[prev] = true
				}
				Expect(left[phase]).To(BeFalse(), "run %d turn %d re-entered %s", run, turn, phase)
				if phase == brain.PhaseRevision || phase == brain.PhaseFinalReview {
					// Back edges between these two are allowed.
					delete(left, brain.PhaseRevision)
					delete(left, brain.PhaseFinalReview)
				}
				prev = phase
				c.say(speaker, texts[rng.Intn(len(texts))])
			}
		}
	})
})
