package cli

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/absmach/fedagg/pkg/codec"
	"github.com/absmach/fedagg/pkg/structure"
	"github.com/absmach/fedagg/pkg/types"
	"github.com/spf13/cobra"
)

const (
	hexEncoding    = "hex"
	base64Encoding = "base64"
)

type decodedValue struct {
	Kind  string          `json:"kind"`
	Type  string          `json:"type"`
	Value structure.Value `json:"value"`
}

func NewTensorCmd() *cobra.Command {
	var (
		typeSpec string
		encoding string
	)

	cmd := &cobra.Command{
		Use:   "tensor [encode|decode]",
		Short: "Value codec",
		Long:  `Encode JSON literals into value envelopes and decode them back.`,
	}

	encodeCmd := &cobra.Command{
		Use:   "encode <literal>",
		Short: "Encode value",
		Long: `Encode a JSON literal into a value envelope. Without --type the tensor
dtype and shape are inferred from the literal.

Examples:
  fedagg-cli tensor encode '[[1, 2], [3, 4]]'
  fedagg-cli tensor encode '[0.5, 1.5]' --type "float32[2]" --encoding base64`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			out, err := encodeLiteral(args[0], typeSpec, encoding)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
		},
	}

	decodeCmd := &cobra.Command{
		Use:   "decode <envelope>",
		Short: "Decode value",
		Long:  `Decode a value envelope and show its type and contents.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			dv, err := decodeEnvelope(args[0], encoding)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, dv)
		},
	}

	encodeCmd.Flags().StringVarP(&typeSpec, "type", "t", "", "Value type, inferred from the literal when empty")

	cmd.AddCommand(encodeCmd)
	cmd.AddCommand(decodeCmd)

	cmd.PersistentFlags().StringVar(&encoding, "encoding", hexEncoding, "Envelope encoding: hex or base64")

	return cmd
}

func encodeLiteral(literal, typeSpec, encoding string) (string, error) {
	var (
		v   codec.Value
		err error
	)

	switch typeSpec {
	case "":
		lit, perr := parseLiteral(literal)
		if perr != nil {
			return "", perr
		}
		v, err = codec.SerializeTensorValue(lit, nil)
	default:
		t, perr := types.Parse(typeSpec)
		if perr != nil {
			return "", perr
		}
		value, perr := structure.FromJSON(t, []byte(literal))
		if perr != nil {
			return "", perr
		}
		v, err = codec.SerializeValue(value)
	}
	if err != nil {
		return "", err
	}

	data, err := v.Marshal()
	if err != nil {
		return "", err
	}

	return encodeBytes(data, encoding)
}

func decodeEnvelope(s, encoding string) (decodedValue, error) {
	data, err := decodeBytes(s, encoding)
	if err != nil {
		return decodedValue{}, err
	}

	v, err := codec.Unmarshal(data)
	if err != nil {
		return decodedValue{}, err
	}

	value, t, err := codec.DeserializeValue(v)
	if err != nil {
		return decodedValue{}, err
	}

	return decodedValue{
		Kind:  v.Kind.String(),
		Type:  t.String(),
		Value: value,
	}, nil
}

func encodeBytes(data []byte, encoding string) (string, error) {
	switch encoding {
	case hexEncoding:
		return hex.EncodeToString(data), nil
	case base64Encoding:
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
}

func decodeBytes(s, encoding string) ([]byte, error) {
	switch encoding {
	case hexEncoding:
		return hex.DecodeString(s)
	case base64Encoding:
		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}
