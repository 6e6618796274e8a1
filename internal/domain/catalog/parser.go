package catalog

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/farmacia-pos/internal/domain/entity"
)

// RowError describe una fila descartada. No aborta el lote.
type RowError struct {
	Line    int    // línea del archivo (1 = encabezado)
	Field   string // columna que falló; vacío si es la fila completa
	Message string
}

func (e *RowError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("línea %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("línea %d, columna %q: %s", e.Line, e.Field, e.Message)
}

// Alias de encabezados aceptados en la fuente.
var headerAliases = map[string]string{
	"slug":        "sku",
	"cost":        "average_cost",
	"category_id": "category",
}

var productColumns = map[string]bool{
	"id": true, "sku": true, "name": true, "price": true,
	"average_cost": true, "reorder_point": true, "category": true,
}

var batchColumns = map[string]bool{
	"id": true, "product_id": true, "lot_number": true, "received_at": true, "expires_at": true,
}

type productRow struct {
	ID           string `csv:"id" validate:"required,max=100"`
	SKU          string `csv:"sku" validate:"max=100"`
	Name         string `csv:"name" validate:"required,max=200"`
	Price        string `csv:"price" validate:"required"`
	AverageCost  string `csv:"average_cost"`
	ReorderPoint string `csv:"reorder_point"`
	Category     string `csv:"category" validate:"max=100"`
}

type batchRow struct {
	ID         string `csv:"id" validate:"required,max=100"`
	ProductID  string `csv:"product_id" validate:"required,max=100"`
	LotNumber  string `csv:"lot_number" validate:"max=100"`
	ReceivedAt string `csv:"received_at" validate:"required"`
	ExpiresAt  string `csv:"expires_at"`
}

// Parser convierte el CSV crudo en productos y lotes tipados. Es puro: sin E/S ni estado mutable.
type Parser struct {
	validate *validator.Validate
}

// NewParser construye el parser con las reglas de validación por fila.
func NewParser() *Parser {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("csv")
	})
	return &Parser{validate: v}
}

type record struct {
	line   int
	fields []string
}

// Parse valida cada fila contra el esquema de Product. Las filas inválidas se reportan en errs
// y se excluyen; con menos de dos líneas devuelve una lista vacía sin errores.
func (p *Parser) Parse(raw []byte) ([]entity.Product, []RowError) {
	header, records := split(raw)
	products := make([]entity.Product, 0, len(records))
	var errs []RowError
	if header == nil {
		return products, errs
	}

	seen := make(map[string]int, len(records))
	for _, rec := range records {
		fields, extra, rowErr := mapFields(header, rec, productColumns)
		if rowErr != nil {
			errs = append(errs, *rowErr)
			continue
		}
		row := productRow{
			ID:           fields["id"],
			SKU:          fields["sku"],
			Name:         norm.NFC.String(fields["name"]),
			Price:        fields["price"],
			AverageCost:  fields["average_cost"],
			ReorderPoint: fields["reorder_point"],
			Category:     fields["category"],
		}
		if rowErr := p.check(rec.line, row); rowErr != nil {
			errs = append(errs, *rowErr)
			continue
		}
		product, rowErr := toProduct(rec.line, row)
		if rowErr != nil {
			errs = append(errs, *rowErr)
			continue
		}
		if first, dup := seen[product.ID]; dup {
			errs = append(errs, RowError{Line: rec.line, Field: "id", Message: fmt.Sprintf("id duplicado (ya definido en la línea %d)", first)})
			continue
		}
		seen[product.ID] = rec.line
		product.Attributes = extra
		products = append(products, product)
	}
	return products, errs
}

// BatchRecord lote parseado junto con su línea en el archivo, para reportar
// errores que se detectan después del parse (por ejemplo, producto inexistente).
type BatchRecord struct {
	entity.ProductBatch
	Line int
}

// ParseBatches aplica las mismas reglas al archivo de lotes.
func (p *Parser) ParseBatches(raw []byte) ([]BatchRecord, []RowError) {
	header, records := split(raw)
	batches := make([]BatchRecord, 0, len(records))
	var errs []RowError
	if header == nil {
		return batches, errs
	}

	seen := make(map[string]int, len(records))
	for _, rec := range records {
		fields, extra, rowErr := mapFields(header, rec, batchColumns)
		if rowErr != nil {
			errs = append(errs, *rowErr)
			continue
		}
		row := batchRow{
			ID:         fields["id"],
			ProductID:  fields["product_id"],
			LotNumber:  fields["lot_number"],
			ReceivedAt: fields["received_at"],
			ExpiresAt:  fields["expires_at"],
		}
		if rowErr := p.check(rec.line, row); rowErr != nil {
			errs = append(errs, *rowErr)
			continue
		}
		received, err := parseDate(row.ReceivedAt)
		if err != nil {
			errs = append(errs, RowError{Line: rec.line, Field: "received_at", Message: err.Error()})
			continue
		}
		batch := entity.ProductBatch{
			ID:         row.ID,
			ProductID:  row.ProductID,
			LotNumber:  row.LotNumber,
			ReceivedAt: received,
			Attributes: extra,
		}
		if row.ExpiresAt != "" {
			expires, err := parseDate(row.ExpiresAt)
			if err != nil {
				errs = append(errs, RowError{Line: rec.line, Field: "expires_at", Message: err.Error()})
				continue
			}
			batch.ExpiresAt = &expires
		}
		key := batch.ProductID + "\x00" + batch.ID
		if first, dup := seen[key]; dup {
			errs = append(errs, RowError{Line: rec.line, Field: "id", Message: fmt.Sprintf("lote duplicado (ya definido en la línea %d)", first)})
			continue
		}
		seen[key] = rec.line
		batches = append(batches, BatchRecord{ProductBatch: batch, Line: rec.line})
	}
	return batches, errs
}

func (p *Parser) check(line int, row any) *RowError {
	err := p.validate.Struct(row)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		msg := "valor inválido"
		switch fe.Tag() {
		case "required":
			msg = "campo requerido"
		case "max":
			msg = fmt.Sprintf("máximo %s caracteres", fe.Param())
		}
		return &RowError{Line: line, Field: fe.Field(), Message: msg}
	}
	return &RowError{Line: line, Message: err.Error()}
}

func toProduct(line int, row productRow) (entity.Product, *RowError) {
	price, err := nonNegativeDecimal(row.Price)
	if err != nil {
		return entity.Product{}, &RowError{Line: line, Field: "price", Message: err.Error()}
	}
	cost := decimal.Zero
	if row.AverageCost != "" {
		if cost, err = nonNegativeDecimal(row.AverageCost); err != nil {
			return entity.Product{}, &RowError{Line: line, Field: "average_cost", Message: err.Error()}
		}
	}
	var reorder int64
	if row.ReorderPoint != "" {
		reorder, err = strconv.ParseInt(row.ReorderPoint, 10, 64)
		if err != nil || reorder < 0 {
			return entity.Product{}, &RowError{Line: line, Field: "reorder_point", Message: "se esperaba un entero no negativo"}
		}
	}
	return entity.Product{
		ID:           row.ID,
		SKU:          row.SKU,
		Name:         row.Name,
		Price:        price,
		AverageCost:  cost,
		ReorderPoint: reorder,
		CategoryID:   row.Category,
	}, nil
}

func nonNegativeDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("se esperaba un número")
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("no puede ser negativo")
	}
	return d, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("fecha inválida (RFC3339 o AAAA-MM-DD)")
	}
	return t, nil
}

// split quita el BOM, separa líneas y columnas. Cada coma separa un campo:
// las comas embebidas no se soportan (ni siquiera entre comillas).
func split(raw []byte) ([]string, []record) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		decoded = raw
	}
	lines := bytes.Split(decoded, []byte("\n"))
	for len(lines) > 0 && len(bytes.TrimSpace(lines[len(lines)-1])) == 0 {
		lines = lines[:len(lines)-1]
	}
	if len(lines) < 2 {
		return nil, nil
	}

	header := strings.Split(strings.TrimRight(string(lines[0]), "\r"), ",")
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if alias, ok := headerAliases[h]; ok {
			h = alias
		}
		header[i] = h
	}

	records := make([]record, 0, len(lines)-1)
	for i, l := range lines[1:] {
		text := strings.TrimRight(string(l), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := strings.Split(text, ",")
		for j := range fields {
			fields[j] = strings.TrimSpace(fields[j])
		}
		records = append(records, record{line: i + 2, fields: fields})
	}
	return header, records
}

func mapFields(header []string, rec record, known map[string]bool) (map[string]string, map[string]string, *RowError) {
	if len(rec.fields) != len(header) {
		return nil, nil, &RowError{
			Line:    rec.line,
			Message: fmt.Sprintf("se esperaban %d columnas, llegaron %d", len(header), len(rec.fields)),
		}
	}
	fields := make(map[string]string, len(header))
	var extra map[string]string
	for i, name := range header {
		if known[name] {
			fields[name] = rec.fields[i]
			continue
		}
		if name == "" {
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[name] = rec.fields[i]
	}
	return fields, extra, nil
}
