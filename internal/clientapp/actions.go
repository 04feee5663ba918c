package clientapp

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/liftcare/liftsuite/internal/model"
)

const maxSignatureBytes = 2 << 20

// formError is a message about the submitted form, shown to the user as is.
type formError string

func (e formError) Error() string { return string(e) }

// runAction posts one detail page button to its API sub-resource.
func (s *server) runAction(w http.ResponseWriter, r *http.Request) {
	res, ok := s.resourceFor(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	detail := "/" + res.Key + "/" + url.PathEscape(id)
	act, ok := res.findAction(mux.Vars(r)["action"])
	if !ok || !roleIn(meFrom(r).User.Role, act.Roles) {
		redirectWith(w, r, detail, "error", "That action is not available")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		redirectWith(w, r, detail, "error", "Invalid form submission")
		return
	}
	csrf := strings.TrimSpace(r.FormValue("csrf_token"))
	if csrf == "" {
		redirectWith(w, r, detail, "error", "Missing csrf token")
		return
	}
	recordPath := res.API + "/" + url.PathEscape(id)

	var err error
	switch act.API {
	case "qr":
		_, err = s.sendJSON(r, http.MethodPost, recordPath+"/qr", csrf, nil)
	case "send":
		err = s.sendQuotation(r, recordPath, csrf)
	default:
		var record map[string]any
		if needsRecord(act.Fields) {
			record = map[string]any{}
			if err := s.getJSON(r, recordPath, &record); err != nil {
				redirectWith(w, r, detail, "error", userMessage(err, "Unable to load "+strings.ToLower(res.Singular)))
				return
			}
		}
		var payload map[string]any
		payload, err = formPayload(r, act.Fields, record)
		if err == nil {
			for k, v := range act.Fixed {
				payload[k] = v
			}
			_, err = s.sendJSON(r, http.MethodPost, recordPath+"/"+act.API, csrf, payload)
		}
	}
	if err != nil {
		if errors.Is(err, errUnauthorized) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		redirectWith(w, r, detail, "error", userMessage(err, "Unable to "+strings.ToLower(act.Label)))
		return
	}
	redirectWith(w, r, detail, "message", act.Label+" done")
}

// sendQuotation moves a draft to sent by saving it back with the new status.
func (s *server) sendQuotation(r *http.Request, recordPath, csrf string) error {
	record := map[string]any{}
	if err := s.getJSON(r, recordPath, &record); err != nil {
		return err
	}
	record["status"] = model.QuotationSent
	_, err := s.sendJSON(r, http.MethodPut, recordPath, csrf, record)
	return err
}

func needsRecord(fields []field) bool {
	for _, f := range fields {
		if f.Kind == "checklist" {
			return true
		}
	}
	return false
}

// formPayload converts submitted form values into the JSON body the API expects.
// record supplies the current checklist for checklist fields.
func formPayload(r *http.Request, fields []field, record map[string]any) (map[string]any, error) {
	payload := map[string]any{}
	for _, f := range fields {
		raw := strings.TrimSpace(r.FormValue(f.Name))
		switch f.Kind {
		case "bool":
			payload[f.Name] = raw != "" && raw != "false"
			continue
		case "checklist":
			payload[f.Name] = checklistPayload(record[f.Name], r.Form[f.Name])
			continue
		case "signature":
			sig, err := signatureDataURL(r, f.Name)
			if err != nil {
				return nil, err
			}
			if sig != "" {
				payload[f.Name] = sig
			} else if f.Required {
				return nil, formError(f.Label + " is required")
			}
			continue
		case "file":
			continue
		}

		if raw == "" {
			if f.Required {
				return nil, formError(f.Label + " is required")
			}
			continue
		}
		switch f.Kind {
		case "money":
			cents, err := model.ParseCents(raw)
			if err != nil {
				return nil, formError(f.Label + " must be an amount such as 1250.50")
			}
			payload[f.Name] = cents
		case "int":
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, formError(f.Label + " must be a whole number")
			}
			payload[f.Name] = n
		case "percent":
			pct, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
			if err != nil || pct < 0 || pct > 100 {
				return nil, formError(f.Label + " must be between 0 and 100")
			}
			payload[f.Name] = int64(math.Round(pct * 100))
		case "items":
			items, err := parseItems(raw)
			if err != nil {
				return nil, err
			}
			payload[f.Name] = items
		case "textarea":
			payload[f.Name] = r.FormValue(f.Name)
		default:
			payload[f.Name] = raw
		}
	}
	return payload, nil
}

type itemPayload struct {
	Description    string  `json:"description"`
	Quantity       float64 `json:"quantity"`
	UnitPriceCents int64   `json:"unitPriceCents"`
}

// parseItems reads one quotation line per row as "description | quantity | unit price".
// Quantity defaults to 1 when only description and price are given.
func parseItems(raw string) ([]itemPayload, error) {
	var items []itemPayload
	for n, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		lineNo := strconv.Itoa(n + 1)
		var item itemPayload
		switch len(parts) {
		case 2:
			item.Description, item.Quantity = parts[0], 1
		case 3:
			item.Description = parts[0]
			qty, err := strconv.ParseFloat(parts[1], 64)
			if err != nil || qty <= 0 {
				return nil, formError("line " + lineNo + ": quantity must be a positive number")
			}
			item.Quantity = qty
		default:
			return nil, formError("line " + lineNo + ": use description | quantity | unit price")
		}
		cents, err := model.ParseCents(parts[len(parts)-1])
		if err != nil {
			return nil, formError("line " + lineNo + ": unit price must be an amount")
		}
		item.UnitPriceCents = cents
		if item.Description == "" {
			return nil, formError("line " + lineNo + ": description is required")
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, formError("add at least one item")
	}
	return items, nil
}

// checklistPayload marks the record's checklist items whose keys were submitted.
func checklistPayload(current any, checkedKeys []string) []model.ChecklistItem {
	checked := make(map[string]bool, len(checkedKeys))
	for _, k := range checkedKeys {
		checked[k] = true
	}
	items := checklistItems(current)
	out := make([]model.ChecklistItem, 0, len(items))
	for _, item := range items {
		out = append(out, model.ChecklistItem{
			Key:     item.Key,
			Section: item.Section,
			Label:   item.Label,
			Checked: checked[item.Key],
			Notes:   item.Notes,
		})
	}
	return out
}

// signatureDataURL turns an uploaded signature image into a data URL. A drawn signature
// posted as a data URL text value is passed through.
func signatureDataURL(r *http.Request, name string) (string, error) {
	if r.MultipartForm != nil {
		if headers := r.MultipartForm.File[name]; len(headers) > 0 {
			file, err := headers[0].Open()
			if err != nil {
				return "", formError("unable to read the signature")
			}
			defer file.Close()
			raw, err := io.ReadAll(io.LimitReader(file, maxSignatureBytes+1))
			if err != nil {
				return "", formError("unable to read the signature")
			}
			if len(raw) > maxSignatureBytes {
				return "", formError("the signature image is too large")
			}
			if len(raw) > 0 {
				mime := http.DetectContentType(raw)
				if mime != "image/png" && mime != "image/jpeg" {
					return "", formError("the signature must be a PNG or JPEG image")
				}
				return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
			}
		}
	}
	if v := strings.TrimSpace(r.FormValue(name)); strings.HasPrefix(v, "data:image/") {
		return v, nil
	}
	return "", nil
}

// multipartFromForm re-encodes the parsed request form for the API, keeping the listed
// fields and their files.
func multipartFromForm(r *http.Request, fields []field) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range fields {
		if f.Kind != "file" {
			if v := strings.TrimSpace(r.FormValue(f.Name)); v != "" {
				if err := mw.WriteField(f.Name, v); err != nil {
					return nil, "", err
				}
			} else if f.Required {
				return nil, "", formError(f.Label + " is required")
			}
			continue
		}
		var headers []*multipart.FileHeader
		if r.MultipartForm != nil {
			headers = r.MultipartForm.File[f.Name]
		}
		if len(headers) == 0 {
			if f.Required {
				return nil, "", formError("choose a file to upload")
			}
			continue
		}
		if err := copyFilePart(mw, f.Name, headers[0]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

func copyFilePart(mw *multipart.Writer, name string, header *multipart.FileHeader) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := mw.CreateFormFile(name, header.Filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
