package parsing

import (
	"fmt"

	"github.com/hello0827/keripy/core"
	"github.com/hello0827/keripy/serdering"
)

// Message is one parsed wire message: the event plus whatever attachment
// groups followed it.
type Message struct {
	Serder      *serdering.Serder
	Attachments Attachments
}

// ParseOne parses a single message off the head of stream: the event
// itself (per serdering.ParseSerder), then its attachment region in
// whichever framing mode the stream uses (spec §6.2). It returns the
// message and the number of bytes consumed, so callers can keep slicing a
// larger stream. A stream that ends inside the event body, or inside an
// attachment group whose counter has been read, yields an error that is or
// wraps a *core.ShortageError, so a caller reading off a live connection can
// await more bytes and retry rather than treating it as a parse failure. A
// stream shorter than the version string yields a serdering version error,
// and in flat framing a truncated counter ends the attachment region.
func ParseOne(stream []byte) (*Message, int, error) {
	serder, err := serdering.ParseSerder(stream)
	if err != nil {
		return nil, 0, err
	}
	consumed := serder.Size()

	atts, attConsumed, err := parseAttachments(string(stream[consumed:]))
	if err != nil {
		return nil, 0, err
	}
	consumed += attConsumed

	return &Message{Serder: serder, Attachments: atts}, consumed, nil
}

// ParseAll repeatedly parses messages off stream until it is exhausted.
// The error of the first message that fails to parse (a shortage error, as
// ParseOne describes, if the stream ends mid-message) is returned
// alongside whatever complete messages preceded it, so a caller
// buffering a live stream can keep what parsed and await more bytes for
// the rest.
func ParseAll(stream []byte) ([]*Message, error) {
	var msgs []*Message
	for len(stream) > 0 {
		msg, n, err := ParseOne(stream)
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
		stream = stream[n:]
	}
	return msgs, nil
}

// parseAttachments decodes the attachment region starting at data. Two
// framing modes are supported: flat, where groups are read back-to-back
// until data no longer starts with a known Counter (the next message's
// version string, or the end of stream); and pipelined, where a leading
// "-V" counter declares the attachment region's total quadlet size up
// front, letting a transport skip the whole region without understanding
// it. It returns how many characters of data were consumed.
func parseAttachments(data string) (Attachments, int, error) {
	var atts Attachments
	consumed := 0
	pipelineEnd := -1 // -1 means flat mode: no declared end, stop at first unknown prefix

	for {
		if pipelineEnd >= 0 && consumed >= pipelineEnd {
			break
		}
		if consumed >= len(data) {
			break
		}
		ctr, err := core.CounterFromQb64(data[consumed:])
		if err != nil {
			if pipelineEnd >= 0 {
				return Attachments{}, 0, fmt.Errorf("parsing: malformed attachment inside pipelined region: %w", err)
			}
			break // flat mode: whatever follows isn't attachment data
		}
		consumed += ctr.Size()

		switch ctr.Code() {
		case core.CtrAttachedMaterialQb64:
			if pipelineEnd >= 0 {
				return Attachments{}, 0, fmt.Errorf("parsing: nested pipelined attachment counter")
			}
			pipelineEnd = consumed + ctr.Count()*4

		case core.CtrControllerIdxSigs:
			sigs, n, err := parseIndexedSigs(data[consumed:], ctr.Count())
			if err != nil {
				return Attachments{}, 0, err
			}
			atts.ControllerSigs = append(atts.ControllerSigs, sigs...)
			consumed += n

		case core.CtrWitnessIdxSigs:
			sigs, n, err := parseIndexedSigs(data[consumed:], ctr.Count())
			if err != nil {
				return Attachments{}, 0, err
			}
			atts.WitnessSigs = append(atts.WitnessSigs, sigs...)
			consumed += n

		case core.CtrNonTransReceiptCpl:
			couples, n, err := parseCouples(data[consumed:], ctr.Count())
			if err != nil {
				return Attachments{}, 0, err
			}
			atts.Couples = append(atts.Couples, couples...)
			consumed += n

		case core.CtrTransReceiptQuad:
			quads, n, err := parseQuadruples(data[consumed:], ctr.Count())
			if err != nil {
				return Attachments{}, 0, err
			}
			atts.Quadruples = append(atts.Quadruples, quads...)
			consumed += n

		case core.CtrSealSourceCpl:
			sources, n, err := parseSealSources(data[consumed:], ctr.Count())
			if err != nil {
				return Attachments{}, 0, err
			}
			atts.SealSources = append(atts.SealSources, sources...)
			consumed += n

		case core.CtrSealSourceLastSingle:
			m, err := core.MatterFromQb64(data[consumed:])
			if err != nil {
				return Attachments{}, 0, fmt.Errorf("parsing: seal-source-last prefix: %w", err)
			}
			atts.SealSourceLast = m.Qb64()
			consumed += len(m.Qb64())

		default:
			return Attachments{}, 0, fmt.Errorf("parsing: unhandled attachment group %q", ctr.Code())
		}
	}

	return atts, consumed, nil
}
