package catalog_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/farmacia-pos/internal/domain/catalog"
)

const header = "id,sku,name,price,average_cost,reorder_point,category"

func TestParse_FilasValidas(t *testing.T) {
	raw := header + "\n" +
		"P1,paracetamol-500,Paracetamol 500mg,3500,2100.50,20,analgesicos\n" +
		"P2,ibuprofeno-400,Ibuprofeno 400mg,4200,,,\n"

	products, errs := catalog.NewParser().Parse([]byte(raw))

	require.Empty(t, errs)
	require.Len(t, products, 2)
	p1 := products[0]
	assert.Equal(t, "P1", p1.ID)
	assert.Equal(t, "paracetamol-500", p1.SKU)
	assert.Equal(t, "Paracetamol 500mg", p1.Name)
	assert.True(t, decimal.NewFromInt(3500).Equal(p1.Price))
	assert.True(t, decimal.RequireFromString("2100.50").Equal(p1.AverageCost))
	assert.Equal(t, int64(20), p1.ReorderPoint)
	assert.Equal(t, "analgesicos", p1.CategoryID)

	p2 := products[1]
	assert.True(t, p2.AverageCost.IsZero(), "costo vacío = 0")
	assert.Equal(t, int64(0), p2.ReorderPoint)
}

func TestParse_FilasInvalidasSeOmiten(t *testing.T) {
	raw := strings.Join([]string{
		header,
		"P1,a,Uno,100,50,5,c",
		",b,SinID,100,50,5,c",         // id requerido
		"P3,c,,100,50,5,c",            // name requerido
		"P4,d,Precio,abc,50,5,c",      // precio no numérico
		"P5,e,Negativo,-1,50,5,c",     // precio negativo
		"P6,f,Reorden,100,50,x,c",     // reorder_point no entero
		"P7,g,Columnas,100,50",        // cantidad de columnas
		"P8,h,Coma,en,nombre,1,2,3,c", // coma embebida: columnas de más
		"P9,i,Nueve,100,50,5,c",
	}, "\n")

	products, errs := catalog.NewParser().Parse([]byte(raw))

	require.Len(t, products, 2)
	assert.Equal(t, "P1", products[0].ID)
	assert.Equal(t, "P9", products[1].ID)
	require.Len(t, errs, 7)

	assert.Equal(t, 3, errs[0].Line)
	assert.Equal(t, "id", errs[0].Field)
	assert.Equal(t, "name", errs[1].Field)
	assert.Equal(t, "price", errs[2].Field)
	assert.Equal(t, "price", errs[3].Field)
	assert.Equal(t, "reorder_point", errs[4].Field)
	assert.Empty(t, errs[5].Field)
	assert.Contains(t, errs[5].Error(), "línea 8")
}

// Para N filas con K malformadas se obtienen N-K productos y K errores.
func TestParse_ConteoNMenosK(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{1, 0}, {5, 2}, {10, 10}, {7, 1}} {
		t.Run(fmt.Sprintf("n=%d,k=%d", tc.n, tc.k), func(t *testing.T) {
			var b strings.Builder
			b.WriteString(header + "\n")
			for i := 0; i < tc.n; i++ {
				if i < tc.k {
					fmt.Fprintf(&b, "X%d,s,Nombre,no-es-precio,1,1,c\n", i)
					continue
				}
				fmt.Fprintf(&b, "P%d,s,Nombre,10,1,1,c\n", i)
			}
			products, errs := catalog.NewParser().Parse([]byte(b.String()))
			assert.Len(t, products, tc.n-tc.k)
			assert.Len(t, errs, tc.k)
		})
	}
}

func TestParse_SinFilasDeDatos(t *testing.T) {
	p := catalog.NewParser()
	for _, raw := range []string{"", header, header + "\n", header + "\n\n\n"} {
		products, errs := p.Parse([]byte(raw))
		assert.NotNil(t, products)
		assert.Empty(t, products)
		assert.Empty(t, errs)
	}
}

func TestParse_IDDuplicado(t *testing.T) {
	raw := header + "\nP1,a,Uno,1,,,\nP1,b,Otro,2,,,\n"
	products, errs := catalog.NewParser().Parse([]byte(raw))
	require.Len(t, products, 1)
	assert.Equal(t, "Uno", products[0].Name)
	require.Len(t, errs, 1)
	assert.Equal(t, "id", errs[0].Field)
}

func TestParse_BOMCRLFAliasYExtras(t *testing.T) {
	raw := "\ufeffID, Slug ,Name,Price,Cost,Reorder_Point,Category_ID,Laboratorio\r\n" +
		"P1,amox,Amoxicilina,9000,7000,15,antibioticos,Genfar\r\n"

	products, errs := catalog.NewParser().Parse([]byte(raw))

	require.Empty(t, errs)
	require.Len(t, products, 1)
	assert.Equal(t, "P1", products[0].ID)
	assert.Equal(t, "amox", products[0].SKU)
	assert.Equal(t, "antibioticos", products[0].CategoryID)
	assert.Equal(t, map[string]string{"laboratorio": "Genfar"}, products[0].Attributes)
}

func TestParse_Determinista(t *testing.T) {
	raw := []byte(header + "\nP1,a,Uno,1,,,\n,b,Malo,1,,,\nP2,c,Dos,2,,,\n")
	p := catalog.NewParser()
	p1, e1 := p.Parse(raw)
	p2, e2 := p.Parse(raw)
	assert.Equal(t, p1, p2)
	assert.Equal(t, e1, e2)
}

func TestParseBatches(t *testing.T) {
	raw := strings.Join([]string{
		"id,product_id,lot_number,received_at,expires_at",
		"L1,P1,A-001,2026-01-10,2027-01-10",
		"L2,P1,A-002,2026-02-01T08:00:00Z,",
		"L3,P2,B-001,ayer,",
		"L1,P1,A-003,2026-03-01,",
	}, "\n")

	batches, errs := catalog.NewParser().ParseBatches([]byte(raw))

	require.Len(t, batches, 2)
	assert.Equal(t, "L1", batches[0].ID)
	require.NotNil(t, batches[0].ExpiresAt)
	assert.Equal(t, 2027, batches[0].ExpiresAt.Year())
	assert.Nil(t, batches[1].ExpiresAt)
	assert.Equal(t, []int{2, 3}, []int{batches[0].Line, batches[1].Line})
	require.Len(t, errs, 2)
	assert.Equal(t, "received_at", errs[0].Field)
	assert.Equal(t, "id", errs[1].Field)
}
