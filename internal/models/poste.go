package models

import (
	"strings"
	"time"
)

// Photo categories.
const (
	FotoPanoramica = "PANORAMICA"
	FotoLuminaria  = "LUMINARIA"
	FotoArvore     = "ARVORE"
	FotoOutro      = "OUTRO"
)

// NormalizeTipoFoto maps a submitted category onto a known one, defaulting to OUTRO.
func NormalizeTipoFoto(tipo string) string {
	switch t := strings.ToUpper(strings.TrimSpace(tipo)); t {
	case FotoPanoramica, FotoLuminaria, FotoArvore, FotoOutro:
		return t
	}
	return FotoOutro
}

// Atributos holds the optional physical attributes of a pole.
// Every field is independently nullable.
type Atributos struct {
	AlturaPoste          *float64 `json:"alturaPoste,omitempty" form:"alturaPoste"`
	TipoPoste            *string  `json:"tipoPoste,omitempty" form:"tipoPoste"`
	EstruturaPoste       *string  `json:"estruturaPoste,omitempty" form:"estruturaPoste"`
	TipoBraco            *string  `json:"tipoBraco,omitempty" form:"tipoBraco"`
	TamanhoBraco         *float64 `json:"tamanhoBraco,omitempty" form:"tamanhoBraco"`
	QuantidadePontos     *int     `json:"quantidadePontos,omitempty" form:"quantidadePontos"`
	TipoLampada          *string  `json:"tipoLampada,omitempty" form:"tipoLampada"`
	PotenciaLampada      *int     `json:"potenciaLampada,omitempty" form:"potenciaLampada"`
	TipoReator           *string  `json:"tipoReator,omitempty" form:"tipoReator"`
	TipoComando          *string  `json:"tipoComando,omitempty" form:"tipoComando"`
	TipoRede             *string  `json:"tipoRede,omitempty" form:"tipoRede"`
	TipoCabo             *string  `json:"tipoCabo,omitempty" form:"tipoCabo"`
	NumeroFases          *int     `json:"numeroFases,omitempty" form:"numeroFases"`
	Transformador        *bool    `json:"transformador,omitempty" form:"transformador"`
	Medicao              *bool    `json:"medicao,omitempty" form:"medicao"`
	FinalidadeInstalacao *string  `json:"finalidadeInstalacao,omitempty" form:"finalidadeInstalacao"`
	Observacoes          *string  `json:"observacoes,omitempty" form:"observacoes"`
}

// Poste represents a street-lighting pole inventory record.
type Poste struct {
	ID                  string  `json:"id"`
	NumeroIdentificacao string  `json:"numeroIdentificacao"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	Cidade              string  `json:"cidade"`
	Endereco            string  `json:"endereco"`
	Numero              string  `json:"numero"`
	Cep                 *string `json:"cep,omitempty"`
	Atributos
	UsuarioID *string   `json:"usuarioId"`
	Fotos     []Foto    `json:"fotos"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Foto represents a photograph attached to a pole.
type Foto struct {
	ID           string     `json:"id"`
	PosteID      string     `json:"posteId"`
	URL          string     `json:"url"`
	Tipo         string     `json:"tipo"`
	Especie      *string    `json:"especie,omitempty"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	NomeOriginal string     `json:"nomeOriginal"`
	Tamanho      int64      `json:"tamanho"`
	ContentType  string     `json:"contentType"`
	UploadedAt   time.Time  `json:"uploadedAt"`
	CapturadaEm  *time.Time `json:"capturadaEm,omitempty"`
}

// CreatePosteRequest represents the multipart form fields for creating a pole.
// Photos travel in the same form under the "fotos" file field.
type CreatePosteRequest struct {
	NumeroIdentificacao string `form:"numeroIdentificacao"`
	Cidade              string `form:"cidade"`
	Endereco            string `form:"endereco"`
	Numero              string `form:"numero"`
	Cep                 string `form:"cep"`
	UsuarioID           string `form:"usuarioId"`
	// Coords is "[lat, lon]" or "lat,lon".
	Coords string `form:"coords"`
	Atributos
}

// UpdateLocationRequest represents the request body for moving a pole.
// Either Latitude and Longitude or Coords ([lat, lon]) must be set.
type UpdateLocationRequest struct {
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Coords    []float64 `json:"coords"`
}
