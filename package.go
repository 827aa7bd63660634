package tabexport

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

const (
	nsMain          = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	relTypeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relTypeSheet    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet"
	relTypeSST      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/sharedStrings"
	relTypeCalc     = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/calcChain"
	contentTypeSST  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"

	partContentTypes = "[Content_Types].xml"
	partRootRels     = "_rels/.rels"
	defaultSSTPart   = "xl/sharedStrings.xml"
)

// opcPackage is the zip container of a spreadsheet document, kept as raw
// parts in their original order.
type opcPackage struct {
	order []string
	parts map[string][]byte
}

func openPackage(data []byte) (*opcPackage, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	p := &opcPackage{parts: make(map[string][]byte, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open part %q: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read part %q: %w", f.Name, err)
		}
		p.order = append(p.order, f.Name)
		p.parts[f.Name] = b
	}
	return p, nil
}

func (p *opcPackage) get(name string) ([]byte, bool) {
	b, ok := p.parts[name]
	return b, ok
}

func (p *opcPackage) put(name string, data []byte) {
	if _, ok := p.parts[name]; !ok {
		p.order = append(p.order, name)
	}
	p.parts[name] = data
}

func (p *opcPackage) remove(name string) {
	if _, ok := p.parts[name]; !ok {
		return
	}
	delete(p.parts, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

func (p *opcPackage) write(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, name := range p.order {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("write part %q: %w", name, err)
		}
		if _, err := fw.Write(p.parts[name]); err != nil {
			return fmt.Errorf("write part %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close package: %w", err)
	}
	return nil
}

type xmlRelationships struct {
	XMLName       xml.Name          `xml:"http://schemas.openxmlformats.org/package/2006/relationships Relationships"`
	Relationships []xmlRelationship `xml:"Relationship"`
}

type xmlRelationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

type xmlContentTypes struct {
	XMLName   xml.Name      `xml:"http://schemas.openxmlformats.org/package/2006/content-types Types"`
	Defaults  []xmlDefault  `xml:"Default"`
	Overrides []xmlOverride `xml:"Override"`
}

type xmlDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type xmlOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type xmlWorkbook struct {
	Sheets []xmlSheet `xml:"sheets>sheet"`
}

type xmlSheet struct {
	Name    string `xml:"name,attr"`
	SheetID string `xml:"sheetId,attr"`
	RID     string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
}

func relsPartFor(part string) string {
	dir, file := path.Split(part)
	return dir + "_rels/" + file + ".rels"
}

// resolveTarget resolves a relationship target against the source part.
func resolveTarget(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(path.Dir(source), target))
}

// relativeTarget is the inverse of resolveTarget for parts below the
// source part's directory.
func relativeTarget(source, part string) string {
	dir := path.Dir(source) + "/"
	if strings.HasPrefix(part, dir) {
		return strings.TrimPrefix(part, dir)
	}
	return "/" + part
}

func (p *opcPackage) readRels(source string) (*xmlRelationships, error) {
	rels := &xmlRelationships{}
	b, ok := p.get(relsPartFor(source))
	if !ok {
		return rels, nil
	}
	if err := xml.Unmarshal(b, rels); err != nil {
		return nil, fmt.Errorf("parse relationships of %q: %w", source, err)
	}
	return rels, nil
}

func (p *opcPackage) writeRels(source string, rels *xmlRelationships) error {
	b, err := xml.Marshal(rels)
	if err != nil {
		return fmt.Errorf("marshal relationships of %q: %w", source, err)
	}
	p.put(relsPartFor(source), append([]byte(xml.Header), b...))
	return nil
}

func (p *opcPackage) readContentTypes() (*xmlContentTypes, error) {
	b, ok := p.get(partContentTypes)
	if !ok {
		return nil, errors.New("package has no content types part")
	}
	ct := &xmlContentTypes{}
	if err := xml.Unmarshal(b, ct); err != nil {
		return nil, fmt.Errorf("parse content types: %w", err)
	}
	return ct, nil
}

func (p *opcPackage) writeContentTypes(ct *xmlContentTypes) error {
	b, err := xml.Marshal(ct)
	if err != nil {
		return fmt.Errorf("marshal content types: %w", err)
	}
	p.put(partContentTypes, append([]byte(xml.Header), b...))
	return nil
}

// Workbook is the in-memory document an export run works on. It owns the
// package parts it was read from; it is discarded once written.
type Workbook struct {
	Sheets []*Worksheet

	pkg          *opcPackage
	workbookPart string
	sstPart      string
	sst          *sstLayout
	rowsInserted bool
}

// openWorkbook reads the workbook, its worksheets and its shared-string
// table from a package.
func openWorkbook(data []byte) (*Workbook, []SharedString, error) {
	pkg, err := openPackage(data)
	if err != nil {
		return nil, nil, err
	}
	rootRels, err := pkg.readRels("")
	if err != nil {
		return nil, nil, err
	}
	wb := &Workbook{pkg: pkg}
	for _, r := range rootRels.Relationships {
		if r.Type == relTypeDocument {
			wb.workbookPart = resolveTarget("", r.Target)
		}
	}
	if wb.workbookPart == "" {
		return nil, nil, errors.New("package has no workbook part")
	}
	raw, ok := pkg.get(wb.workbookPart)
	if !ok {
		return nil, nil, fmt.Errorf("workbook part %q missing", wb.workbookPart)
	}
	var book xmlWorkbook
	if err := xml.Unmarshal(raw, &book); err != nil {
		return nil, nil, fmt.Errorf("parse workbook: %w", err)
	}
	rels, err := pkg.readRels(wb.workbookPart)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]xmlRelationship, len(rels.Relationships))
	for _, r := range rels.Relationships {
		byID[r.ID] = r
		if r.Type == relTypeSST {
			wb.sstPart = resolveTarget(wb.workbookPart, r.Target)
		}
	}

	for _, s := range book.Sheets {
		r, ok := byID[s.RID]
		if !ok || r.Type != relTypeSheet {
			// chartsheets and dialog sheets carry no cells
			continue
		}
		part := resolveTarget(wb.workbookPart, r.Target)
		raw, ok := pkg.get(part)
		if !ok {
			return nil, nil, fmt.Errorf("worksheet part %q missing", part)
		}
		ws, err := parseWorksheet(s.Name, part, raw)
		if err != nil {
			return nil, nil, err
		}
		wb.Sheets = append(wb.Sheets, ws)
	}

	var strs []SharedString
	if wb.sstPart != "" {
		if raw, ok := pkg.get(wb.sstPart); ok {
			layout, entries, err := parseSST(raw)
			if err != nil {
				return nil, nil, err
			}
			wb.sst = layout
			strs = entries
		}
	}
	return wb, strs, nil
}

// Sheet returns the worksheet with the given name, or nil.
func (wb *Workbook) Sheet(name string) *Worksheet {
	for _, ws := range wb.Sheets {
		if ws.Name == name {
			return ws
		}
	}
	return nil
}

// EachCell visits every cell of every worksheet until fn returns false.
func (wb *Workbook) EachCell(fn func(*Cell) bool) {
	for _, ws := range wb.Sheets {
		if !ws.Data.EachCell(fn) {
			return
		}
	}
}

// save writes worksheets, the shared-string table and the package to w.
// An empty pool removes the shared-string part and every reference to it.
func (wb *Workbook) save(pool *StringPool, w io.Writer) error {
	for _, ws := range wb.Sheets {
		wb.pkg.put(ws.Part, ws.marshal())
	}
	if wb.rowsInserted {
		if err := wb.removeRelatedPart(relTypeCalc); err != nil {
			return err
		}
		if raw, ok := wb.pkg.get(wb.workbookPart); ok {
			wb.pkg.put(wb.workbookPart, requestFullCalc(raw))
		}
	}

	entries := pool.Flush()
	if len(entries) == 0 {
		if err := wb.removeRelatedPart(relTypeSST); err != nil {
			return err
		}
	} else {
		if err := wb.ensureSSTPart(); err != nil {
			return err
		}
		refs := 0
		wb.EachCell(func(c *Cell) bool {
			if c.Kind == KindSharedString {
				refs++
			}
			return true
		})
		wb.pkg.put(wb.sstPart, marshalSST(wb.sst, entries, refs))
	}
	return wb.pkg.write(w)
}

// removeRelatedPart drops every workbook part of the given relationship
// type along with its relationship and content-type override.
func (wb *Workbook) removeRelatedPart(relType string) error {
	rels, err := wb.pkg.readRels(wb.workbookPart)
	if err != nil {
		return err
	}
	var removed []string
	kept := rels.Relationships[:0]
	for _, r := range rels.Relationships {
		if r.Type == relType {
			removed = append(removed, resolveTarget(wb.workbookPart, r.Target))
			continue
		}
		kept = append(kept, r)
	}
	if len(removed) == 0 {
		return nil
	}
	rels.Relationships = kept
	if err := wb.pkg.writeRels(wb.workbookPart, rels); err != nil {
		return err
	}

	ct, err := wb.pkg.readContentTypes()
	if err != nil {
		return err
	}
	overrides := ct.Overrides[:0]
	for _, o := range ct.Overrides {
		if !contains(removed, strings.TrimPrefix(o.PartName, "/")) {
			overrides = append(overrides, o)
		}
	}
	ct.Overrides = overrides
	if err := wb.pkg.writeContentTypes(ct); err != nil {
		return err
	}
	for _, part := range removed {
		wb.pkg.remove(part)
		wb.pkg.remove(relsPartFor(part))
	}
	if relType == relTypeSST {
		wb.sstPart = ""
		wb.sst = nil
	}
	return nil
}

// ensureSSTPart registers a shared-string part when the package has none.
func (wb *Workbook) ensureSSTPart() error {
	if wb.sstPart != "" {
		return nil
	}
	wb.sstPart = defaultSSTPart
	wb.sst = &sstLayout{}

	rels, err := wb.pkg.readRels(wb.workbookPart)
	if err != nil {
		return err
	}
	rels.Relationships = append(rels.Relationships, xmlRelationship{
		ID:     nextRelID(rels),
		Type:   relTypeSST,
		Target: relativeTarget(wb.workbookPart, wb.sstPart),
	})
	if err := wb.pkg.writeRels(wb.workbookPart, rels); err != nil {
		return err
	}

	ct, err := wb.pkg.readContentTypes()
	if err != nil {
		return err
	}
	ct.Overrides = append(ct.Overrides, xmlOverride{PartName: "/" + wb.sstPart, ContentType: contentTypeSST})
	return wb.pkg.writeContentTypes(ct)
}

func nextRelID(rels *xmlRelationships) string {
	used := make(map[string]bool, len(rels.Relationships))
	for _, r := range rels.Relationships {
		used[r.ID] = true
	}
	for n := len(rels.Relationships) + 1; ; n++ {
		id := "rId" + strconv.Itoa(n)
		if !used[id] {
			return id
		}
	}
}
