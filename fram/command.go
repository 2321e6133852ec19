package fram

// Command is one framed exchange with the device.
type Command interface {
	Execute(t Transport) error
}

type CommandSequence []Command

// Execute runs the sequence in order and stops at the first failure.
func (seq CommandSequence) Execute(t Transport) error {
	for _, cmd := range seq {
		if err := cmd.Execute(t); err != nil {
			return err
		}
	}
	return nil
}

// Chunk is one unit of the persisted image on the wire.
type Chunk struct {
	Address uint16
	Payload []byte
}

// Chunks splits data starting at addr into ChunkSize pieces. Each address
// advances by the previous payload length.
func Chunks(addr uint16, data []byte) []Chunk {
	chunks := make([]Chunk, 0, (len(data)+ChunkSize-1)/ChunkSize)
	for len(data) > 0 {
		n := min(len(data), ChunkSize)
		chunks = append(chunks, Chunk{Address: addr, Payload: data[:n]})
		addr += uint16(n)
		data = data[n:]
	}
	return chunks
}

func exchange(t Transport, op Opcode, addr uint16, frame, rsp []byte) error {
	if err := t.Exchange(frame, rsp); err != nil {
		return &TransportError{Op: op, Address: addr, wrapped: err}
	}
	return nil
}

type simpleCommand struct {
	op Opcode
}

func (c *simpleCommand) Execute(t Transport) error {
	return exchange(t, c.op, 0, []byte{byte(c.op)}, nil)
}

type readStatusCommand struct {
	value *byte
}

func (c *readStatusCommand) Execute(t Transport) error {
	var rsp [1]byte
	if err := exchange(t, OpRDSR, 0, []byte{byte(OpRDSR)}, rsp[:]); err != nil {
		return err
	}
	*c.value = rsp[0]
	return nil
}

type writeStatusCommand struct {
	value byte
}

func (c *writeStatusCommand) Execute(t Transport) error {
	return exchange(t, OpWRSR, 0, []byte{byte(OpWRSR), c.value}, nil)
}

type readCommand struct {
	addr uint16
	dst  []byte
}

func (c *readCommand) Execute(t Transport) error {
	frame := []byte{byte(OpREAD), byte(c.addr >> 8), byte(c.addr)}
	return exchange(t, OpREAD, c.addr, frame, c.dst)
}

type writeCommand struct {
	Chunk
}

func (c *writeCommand) Execute(t Transport) error {
	var sb [3 + ChunkSize]byte
	sb[0] = byte(OpWRITE)
	sb[1] = byte(c.Address >> 8)
	sb[2] = byte(c.Address)
	n := copy(sb[3:], c.Payload)
	return exchange(t, OpWRITE, c.Address, sb[:3+n], nil)
}

func MakeReadCommands(addr uint16, dst []byte) CommandSequence {
	return CommandSequence{&readCommand{addr: addr, dst: dst}}
}

// MakeWriteCommands emits WREN + WRITE for every chunk of data.
func MakeWriteCommands(addr uint16, data []byte) CommandSequence {
	chunks := Chunks(addr, data)
	cmds := make(CommandSequence, 0, len(chunks)*2)
	for _, c := range chunks {
		cmds = append(cmds, &simpleCommand{op: OpWREN}, &writeCommand{Chunk: c})
	}
	return cmds
}
