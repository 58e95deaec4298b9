package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

const ToolGenerateImage = "generate_image"

// GenerateImages renders pictures for description and records each one in the sink
// before returning, so every returned ImageID is resolvable.
func GenerateImages(
	ctx context.Context,
	gen contractx.ImageGenerator,
	sink contractx.PersistenceSink,
	chatID, userID, description string,
) ([]contractx.GeneratedImage, error) {
	images, err := gen.Generate(ctx, description, userID)
	if err != nil {
		return nil, err
	}
	out := make([]contractx.GeneratedImage, 0, len(images))
	for _, img := range images {
		rec, err := sink.AppendImageRecord(ctx, contractx.ImageInput{
			ChatID:          chatID,
			UserID:          userID,
			Description:     img.Description,
			StorageLocation: img.StorageLocation,
		})
		if err != nil {
			return nil, fmt.Errorf("record generated image: %w", err)
		}
		out = append(out, contractx.GeneratedImage{
			ImageID:         rec.ID,
			ChatID:          chatID,
			UserID:          userID,
			Description:     img.Description,
			StorageLocation: img.StorageLocation,
			CreatedAt:       rec.CreatedAt,
		})
	}
	return out, nil
}

func GenerateImage(gen contractx.ImageGenerator, sink contractx.PersistenceSink) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ToolGenerateImage,
			Desc: "Generate an illustration of a product or market scene from a caption-style description.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"description": {Type: schema.String, Desc: "What the image should show", Required: true},
			}),
		},
		Handler: func(ctx context.Context, rc RunContext, args map[string]any) (Result, error) {
			description, err := argString(args, "description", true)
			if err != nil {
				return Result{}, err
			}
			images, err := GenerateImages(ctx, gen, sink, rc.SessionID, rc.ActorID, description)
			if err != nil {
				return Result{}, err
			}

			type imageOut struct {
				ImageID string `json:"image_id"`
				URL     string `json:"url"`
			}
			out := make([]imageOut, 0, len(images))
			for _, img := range images {
				out = append(out, imageOut{ImageID: img.ImageID, URL: img.StorageLocation})
			}
			return jsonText(map[string]any{"images": out})
		},
	}
}
