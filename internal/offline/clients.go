package offline

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Client is an open app window.
type Client struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Focused    bool   `json:"focused"`
	Controller string `json:"controller,omitempty"` // cache version controlling the window
}

// Clients tracks the open windows a worker can focus or control.
type Clients struct {
	mu      sync.Mutex
	clients []Client
}

func NewClients() *Clients {
	return &Clients{}
}

// Open registers a new window at url and focuses it.
func (c *Clients) Open(url string) Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.clients {
		c.clients[i].Focused = false
	}
	cl := Client{ID: uuid.NewString(), URL: url, Focused: true}
	c.clients = append(c.clients, cl)
	return cl
}

// Close forgets window id.
func (c *Clients) Close(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients = slices.DeleteFunc(c.clients, func(cl Client) bool { return cl.ID == id })
}

// Focus moves focus to window id.
func (c *Clients) Focus(id string) (Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out Client
	found := false
	for i := range c.clients {
		c.clients[i].Focused = c.clients[i].ID == id
		if c.clients[i].Focused {
			out, found = c.clients[i], true
		}
	}
	return out, found
}

// Claim makes version the controller of every open window.
func (c *Clients) Claim(version string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.clients {
		c.clients[i].Controller = version
	}
	return len(c.clients)
}

func (c *Clients) List() []Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.clients)
}
