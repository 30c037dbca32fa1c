package controller

// ClientContext carries per-session read state between commands.
type ClientContext struct {
	Session   string
	NextIndex uint64
}

func NewClientContext(session string) *ClientContext {
	return &ClientContext{Session: session}
}

// SetNextIndex moves the session cursor used by READ without from=.
func (ctx *ClientContext) SetNextIndex(index uint64) {
	ctx.NextIndex = index
}
