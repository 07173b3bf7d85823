package bronto

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/bronto-tap/pkg/errors"
	"github.com/ajitpratap0/bronto-tap/pkg/models"
)

const (
	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	serviceNS  = "http://api.bronto.com/v4"
	xsiNS      = "http://www.w3.org/2001/XMLSchema-instance"
)

// FaultNoMoreResults is the fault code a directional read returns once the
// result set is exhausted.
const FaultNoMoreResults = 116

// FaultSessionExpired is the fault code of a request made with a session the
// API no longer accepts.
const FaultSessionExpired = 106

// Fault is a SOAP fault returned by the API.
type Fault struct {
	// Code is the numeric API error code, parsed from the leading digits of
	// the fault string. Zero when the string carries none.
	Code   int
	Actor  string
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("soap fault: %s", f.String)
}

func newFault(faultString, actor string) *Fault {
	s := strings.TrimSpace(faultString)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	code, _ := strconv.Atoi(s[:end])
	return &Fault{Code: code, Actor: actor, String: s}
}

// SessionRejected reports whether the fault says the request's session is
// expired or invalid.
func (f *Fault) SessionRejected() bool {
	if f.Code == FaultSessionExpired {
		return true
	}
	return f.Code == 0 && strings.Contains(strings.ToLower(f.String), "session")
}

// IsFault reports whether err carries a fault with the given code.
func IsFault(err error, code int) bool {
	var f *Fault
	return errors.As(err, &f) && f.Code == code
}

// Param is one named argument of a SOAP operation. Value may be a string,
// bool, an integer, a time.Time, a nested Params, or a slice of those to
// repeat the element.
type Param struct {
	Name  string
	Value interface{}
}

// Params is an ordered argument list.
type Params []Param

// encodeEnvelope renders a request for operation.
func encodeEnvelope(operation, sessionID string, params Params) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	envelope := xml.StartElement{
		Name: xml.Name{Local: "soapenv:Envelope"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:soapenv"}, Value: envelopeNS},
			{Name: xml.Name{Local: "xmlns:v4"}, Value: serviceNS},
		},
	}
	if err := enc.EncodeToken(envelope); err != nil {
		return nil, err
	}

	header := xml.StartElement{Name: xml.Name{Local: "soapenv:Header"}}
	if err := enc.EncodeToken(header); err != nil {
		return nil, err
	}
	if sessionID != "" {
		session := Params{{Name: "sessionId", Value: sessionID}}
		if err := encodeElement(enc, "v4:sessionHeader", session); err != nil {
			return nil, err
		}
	}
	if err := enc.EncodeToken(header.End()); err != nil {
		return nil, err
	}

	body := xml.StartElement{Name: xml.Name{Local: "soapenv:Body"}}
	if err := enc.EncodeToken(body); err != nil {
		return nil, err
	}
	if err := encodeElement(enc, "v4:"+operation, params); err != nil {
		return nil, err
	}
	if err := enc.EncodeToken(body.End()); err != nil {
		return nil, err
	}
	if err := enc.EncodeToken(envelope.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeElement(enc *xml.Encoder, name string, value interface{}) error {
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if err := encodeElement(enc, name, item); err != nil {
				return err
			}
		}
		return nil
	case []string:
		for _, item := range v {
			if err := encodeElement(enc, name, item); err != nil {
				return err
			}
		}
		return nil
	case []Params:
		for _, item := range v {
			if err := encodeElement(enc, name, item); err != nil {
				return err
			}
		}
		return nil
	}

	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	switch v := value.(type) {
	case Params:
		for _, p := range v {
			if err := encodeElement(enc, p.Name, p.Value); err != nil {
				return err
			}
		}
	case nil:
	default:
		text, err := formatValue(v)
		if err != nil {
			return fmt.Errorf("element %s: %w", name, err)
		}
		if err := enc.EncodeToken(xml.CharData(text)); err != nil {
			return err
		}
	}

	return enc.EncodeToken(start.End())
}

func formatValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case time.Time:
		return t.UTC().Format(time.RFC3339), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// Element is a decoded XML element.
type Element struct {
	name     string
	text     string
	nilled   bool
	children []*Element
}

// decodeResponse reads a SOAP response and returns the children of the
// operation's response element. A SOAP fault is returned as *Fault.
func decodeResponse(r io.Reader) ([]*Element, error) {
	dec := xml.NewDecoder(r)

	var body *Element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local == "Body" {
			body, err = decodeNode(dec, start)
			if err != nil {
				return nil, err
			}
			break
		}
	}
	if body == nil {
		return nil, fmt.Errorf("response has no SOAP body")
	}

	for _, child := range body.children {
		if child.name == "Fault" {
			return nil, newFault(child.childText("faultstring"), child.childText("faultactor"))
		}
	}
	if len(body.children) == 0 {
		return nil, nil
	}
	return body.children[0].children, nil
}

func decodeNode(dec *xml.Decoder, start xml.StartElement) (*Element, error) {
	n := &Element{name: start.Name.Local}
	for _, a := range start.Attr {
		if a.Name.Local == "nil" && (a.Name.Space == xsiNS || a.Name.Space == "xsi") && a.Value == "true" {
			n.nilled = true
		}
	}

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeNode(dec, t)
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			n.text = strings.TrimSpace(text.String())
			return n, nil
		}
	}
}

// Text returns the element's character data.
func (n *Element) Text() string {
	return n.text
}

func (n *Element) childText(name string) string {
	for _, c := range n.children {
		if c.name == name {
			return c.text
		}
	}
	return ""
}

// Record converts an element with children into an ordered record. Repeated
// child elements become slices in the position of their first occurrence.
func (n *Element) Record() *models.Record {
	rec := models.NewRecord()
	for _, c := range n.children {
		v := c.value()
		if existing, ok := rec.Get(c.name); ok {
			if list, isList := existing.([]interface{}); isList {
				rec.Set(c.name, append(list, v))
			} else {
				rec.Set(c.name, []interface{}{existing, v})
			}
			continue
		}
		rec.Set(c.name, v)
	}
	return rec
}

func (n *Element) value() interface{} {
	switch {
	case n.nilled:
		return nil
	case len(n.children) > 0:
		return n.Record()
	default:
		return n.text
	}
}
