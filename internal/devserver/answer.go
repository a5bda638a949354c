package devserver

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/raphaelgruber/propchat/internal/models"
	"github.com/raphaelgruber/propchat/internal/rag"
)

// FailTrigger makes a streamed answer end with an error event after the
// first content chunk. It lets the error path be exercised by hand.
const FailTrigger = "/fail"

// reply is a canned answer, split into the chunks it is streamed as.
type reply struct {
	parts     []string
	citations []models.Citation
	artifacts []models.Artifact
	fail      bool
}

func (r reply) content() string { return strings.Join(r.parts, "") }

// corpus is the retrievable knowledge of the development organization.
var corpus = []models.Citation{
	{
		DocumentID: "doc-bail-12", DocumentTitle: "Bail - 12 rue des Lilas", RelevanceScore: 0.92,
		ContentPreview: "Le loyer mensuel hors charges est fixé à 950 euros, révisable chaque année selon l'IRL.",
		SourceType:     models.SourceLeases, PageNumber: intPtr(2),
	},
	{
		DocumentID: "doc-bail-7", DocumentTitle: "Bail - Studio 7 avenue Foch", RelevanceScore: 0.85,
		ContentPreview: "Le présent bail prend fin le 30 juin 2026. Préavis du locataire: un mois.",
		SourceType:     models.SourceLeases, PageNumber: intPtr(1),
	},
	{
		DocumentID: "prop-lilas", DocumentTitle: "Fiche bien - Lilas T3", RelevanceScore: 0.78,
		ContentPreview: "T3 de 48,5 m², 2e étage, DPE C.",
		SourceType:     models.SourceProperties,
	},
	{
		DocumentID: "tenant-martin", DocumentTitle: "Locataire - Camille Martin", RelevanceScore: 0.74,
		ContentPreview: "Paiements à jour. Dernier règlement le 5 du mois.",
		SourceType:     models.SourceTenants,
	},
	{
		DocumentID: "kpi-2026-02", DocumentTitle: "Indicateurs - février 2026", RelevanceScore: 0.69,
		ContentPreview: "Taux d'occupation 94 %. Rendement brut moyen 5,8 %.",
		SourceType:     models.SourceKPI,
	},
	{
		DocumentID: "doc-quittance-02", DocumentTitle: "Quittance février 2026", RelevanceScore: 0.61,
		ContentPreview: "Quittance de loyer pour la période du 1er au 28 février 2026.",
		SourceType:     models.SourceDocuments, PageNumber: intPtr(1),
	},
}

func intPtr(n int) *int { return &n }

// compose builds the answer to req. Normal mode answers without sources;
// the retrieval modes cite the corpus entries of the selected source types.
func compose(req rag.ChatRequest) reply {
	r := reply{fail: strings.HasPrefix(strings.TrimSpace(req.Message), FailTrigger)}

	if req.Mode == models.ModeNormal {
		r.parts = []string{
			"Bonjour ! ",
			"Je peux vous aider sur la gestion de vos biens, ",
			"de vos baux et de vos locataires.",
		}
		return r
	}

	cites := retrieve(req)
	if len(cites) == 0 {
		if req.Mode == models.ModeRAGOnly {
			r.parts = []string{
				"Je n'ai trouvé aucune information ",
				"dans les sources sélectionnées.",
			}
			return r
		}
		r.parts = []string{
			"Aucun document ne correspond, ",
			"voici une réponse générale: ",
			"vérifiez les dates d'échéance dans vos baux.",
		}
		return r
	}

	r.parts = []string{"D'après vos documents, "}
	for i, c := range cites {
		r.parts = append(r.parts, fmt.Sprintf("%s [%d]. ", strings.TrimSuffix(c.ContentPreview, "."), i+1))
	}
	if req.IncludeCitations {
		r.citations = cites
	}
	if slices.Contains(req.SourceTypes, models.SourceLeases) || len(req.SourceTypes) == 0 {
		r.parts = append(r.parts, "Le tableau ci-dessous récapitule les loyers.")
		r.artifacts = []models.Artifact{rentTable()}
	}
	return r
}

func retrieve(req rag.ChatRequest) []models.Citation {
	limit := req.MaxCitations
	if limit <= 0 {
		limit = rag.DefaultMaxCitations
	}
	var out []models.Citation
	for _, c := range corpus {
		if len(req.SourceTypes) > 0 && !slices.Contains(req.SourceTypes, c.SourceType) {
			continue
		}
		if len(out) == limit {
			break
		}
		c.ID = uuid.NewString()
		c.ChunkID = c.DocumentID + "-chunk-1"
		out = append(out, c)
	}
	return out
}

func rentTable() models.Artifact {
	content, _ := json.Marshal(models.TableContent{
		Columns: []string{"Bien", "Locataire", "Loyer (€)", "Échéance"},
		Data: [][]any{
			{"12 rue des Lilas", "Camille Martin", 950, "2028-08-31"},
			{"7 avenue Foch", "Louis Bernard", 610, "2026-06-30"},
		},
	})
	return models.Artifact{
		ID:      uuid.NewString(),
		Type:    models.ArtifactTable,
		Title:   "Loyers par bien",
		Content: content,
	}
}
