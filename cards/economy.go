package cards

import "errors"

var (
	ErrInsufficientGold = errors.New("insufficient gold")
	ErrEmptyDeck        = errors.New("deck is empty")
	ErrInvalidSlot      = errors.New("invalid hand slot")
)

// Deck is a cycling draw queue: played cards go to the back.
type Deck struct {
	queue []Card
}

func NewDeck(cards []Card) *Deck {
	return &Deck{queue: append([]Card(nil), cards...)}
}

func (d *Deck) Draw() (Card, error) {
	if len(d.queue) == 0 {
		return Card{}, ErrEmptyDeck
	}
	c := d.queue[0]
	d.queue = d.queue[1:]
	return c, nil
}

func (d *Deck) Return(c Card) {
	d.queue = append(d.queue, c)
}

// Player is the host-side hand and deck of one participant.
type Player struct {
	ID   string
	Hand []Card
	deck *Deck
}

func NewPlayer(id string, deck []Card) *Player {
	return &Player{ID: id, deck: NewDeck(deck)}
}

// Deal fills the hand with up to n cards from the deck.
func (p *Player) Deal(n int) []Card {
	for len(p.Hand) < n {
		c, err := p.deck.Draw()
		if err != nil {
			break
		}
		p.Hand = append(p.Hand, c)
	}
	return append([]Card(nil), p.Hand...)
}

// Holds reports whether slot holds exactly card c.
func (p *Player) Holds(slot int, c Card) bool {
	return slot >= 0 && slot < len(p.Hand) && p.Hand[slot] == c
}

// Play removes the card in slot, returns it to the deck and draws its
// replacement into the same slot.
func (p *Player) Play(slot int) (played, replacement Card, err error) {
	if slot < 0 || slot >= len(p.Hand) {
		return Card{}, Card{}, ErrInvalidSlot
	}
	played = p.Hand[slot]
	p.deck.Return(played)
	replacement, err = p.deck.Draw()
	if err != nil {
		return Card{}, Card{}, err
	}
	p.Hand[slot] = replacement
	return played, replacement, nil
}

// Gold is an accruing resource with an upper bound.
type Gold struct {
	Amount int
	Max    int
}

func (g *Gold) Accrue(n int) {
	g.Amount += n
	if g.Max > 0 && g.Amount > g.Max {
		g.Amount = g.Max
	}
}

func (g *Gold) Spend(cost int) error {
	if g.Amount < cost {
		return ErrInsufficientGold
	}
	g.Amount -= cost
	return nil
}
